package windows

import (
	"net/url"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"github.com/roffe/gmapwidget/pkg/gmap"
	"github.com/roffe/gmapwidget/pkg/latlng"
	"github.com/roffe/gmapwidget/pkg/widgets/latlngentry"
)

const (
	prefsLastAddress = "lastAddress"
	prefsLastMarker  = "lastMarker"
)

// MapControls is the control panel of a map. It edits the map through the
// setters and follows the map through a listener.
type MapControls struct {
	fyne.Window
	app fyne.App
	m   *gmap.GMap
	log *zap.Logger

	location    *latlngentry.Widget
	zoom        *widget.Select
	mapType     *widget.Select
	address     *widget.Entry
	gotoBtn     *widget.Button
	resolveBtn  *widget.Button
	marker      *widget.Entry
	addMarkerBt *widget.Button
	pageLink    *widget.Hyperlink

	listener *gmap.ListenerFuncs
	// refreshing is set while widgets are updated from the map so their
	// change handlers do not write the value straight back.
	refreshing bool
}

// NewMapControls builds the panel for m. pageURL, if not empty, is shown as a
// link to the page displaying the map.
func NewMapControls(a fyne.App, m *gmap.GMap, pageURL string, logger *zap.Logger) (*MapControls, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mc := &MapControls{
		Window: a.NewWindow("Map"),
		app:    a,
		m:      m,
		log:    logger.Named("controls"),
	}
	mc.createWidgets(pageURL)
	mc.listener = &gmap.ListenerFuncs{
		OnCenter:  mc.refreshCenter,
		OnZoom:    mc.refreshZoom,
		OnAddress: mc.refreshAddress,
	}
	if err := m.AddListener(mc.listener); err != nil {
		return nil, err
	}
	mc.refresh()
	mc.SetContent(mc.Layout())
	mc.Resize(fyne.NewSize(420, 300))
	mc.SetOnClosed(mc.closed)
	return mc, nil
}

func (mc *MapControls) createWidgets(pageURL string) {
	mc.location = latlngentry.New()
	mc.location.OnCoordinate = func(c latlng.LatLng) {
		if mc.refreshing {
			return
		}
		if err := mc.m.SetCenter(c); err != nil {
			mc.Error(err)
		}
	}

	levels := make([]string, 0, gmap.MaxZoom-gmap.MinZoom+1)
	for z := gmap.MinZoom; z <= gmap.MaxZoom; z++ {
		levels = append(levels, strconv.Itoa(z))
	}
	mc.zoom = widget.NewSelect(levels, func(s string) {
		if mc.refreshing || s == "" {
			return
		}
		z, err := strconv.Atoi(s)
		if err != nil {
			mc.Error(err)
			return
		}
		if err := mc.m.SetZoom(z); err != nil {
			mc.Error(err)
		}
	})

	mc.mapType = widget.NewSelect(gmap.MapTypeNames(), func(s string) {
		if mc.refreshing || s == "" {
			return
		}
		t, err := gmap.ParseMapType(s)
		if err != nil {
			mc.Error(err)
			return
		}
		if err := mc.m.SetType(t); err != nil {
			mc.Error(err)
		}
	})

	mc.address = widget.NewEntry()
	mc.address.SetPlaceHolder("Address")
	mc.address.SetText(mc.app.Preferences().String(prefsLastAddress))
	mc.address.OnSubmitted = func(string) { mc.gotoAddress() }
	mc.gotoBtn = widget.NewButton("go to", mc.gotoAddress)
	mc.resolveBtn = widget.NewButton("resolve", func() {
		if err := mc.m.ResolveAddress(); err != nil {
			mc.Error(err)
		}
	})

	mc.marker = widget.NewEntry()
	mc.marker.SetPlaceHolder("Marker name")
	mc.marker.SetText(mc.app.Preferences().String(prefsLastMarker))
	mc.addMarkerBt = widget.NewButton("add marker", func() {
		mc.app.Preferences().SetString(prefsLastMarker, mc.marker.Text)
		if err := mc.m.AddMarker(mc.marker.Text); err != nil {
			mc.Error(err)
		}
	})

	if u, err := url.Parse(pageURL); err == nil && pageURL != "" {
		mc.pageLink = widget.NewHyperlink("open map page", u)
	}
}

func (mc *MapControls) gotoAddress() {
	mc.app.Preferences().SetString(prefsLastAddress, mc.address.Text)
	if err := mc.m.GotoAddress(mc.address.Text); err != nil {
		mc.Error(err)
	}
}

func (mc *MapControls) Layout() fyne.CanvasObject {
	form := widget.NewForm(
		widget.NewFormItem("Location", mc.location),
		widget.NewFormItem("Zoom", mc.zoom),
		widget.NewFormItem("Type", mc.mapType),
		widget.NewFormItem("Address", container.NewBorder(nil, nil, nil,
			container.NewHBox(mc.gotoBtn, mc.resolveBtn),
			mc.address,
		)),
		widget.NewFormItem("Marker", container.NewBorder(nil, nil, nil, mc.addMarkerBt, mc.marker)),
	)
	if mc.pageLink == nil {
		return form
	}
	return container.NewBorder(nil, mc.pageLink, nil, nil, form)
}

func (mc *MapControls) refresh() {
	mc.refreshCenter()
	mc.refreshZoom()
	mc.refreshType()
}

func (mc *MapControls) refreshCenter() {
	c, err := mc.m.Center()
	if err != nil {
		return
	}
	// Leave text the user is typing alone.
	if shown, ok := mc.location.Coordinate(); ok && shown.Equal(c) {
		return
	}
	mc.refreshing = true
	defer func() { mc.refreshing = false }()
	mc.location.SetCoordinate(c)
}

func (mc *MapControls) refreshZoom() {
	z, err := mc.m.Zoom()
	if err != nil {
		return
	}
	mc.refreshing = true
	defer func() { mc.refreshing = false }()
	mc.zoom.SetSelected(strconv.Itoa(z))
}

func (mc *MapControls) refreshType() {
	t, err := mc.m.Type()
	if err != nil {
		return
	}
	mc.refreshing = true
	defer func() { mc.refreshing = false }()
	mc.mapType.SetSelected(t.String())
}

func (mc *MapControls) refreshAddress() {
	a, err := mc.m.Address()
	if err != nil {
		return
	}
	mc.address.SetText(a)
}

func (mc *MapControls) closed() {
	if err := mc.m.RemoveListener(mc.listener); err != nil {
		mc.log.Debug("remove listener", zap.Error(err))
	}
}

func (mc *MapControls) Error(err error) {
	mc.log.Warn("map control", zap.Error(err))
	dialog.ShowError(err, mc.Window)
}
