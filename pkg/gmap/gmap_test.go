package gmap_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roffe/gmapwidget/pkg/gmap"
	"github.com/roffe/gmapwidget/pkg/latlng"
)

type fakeBrowser struct {
	content  []string
	scripts  []string
	bound    map[string]func(args []any)
	onLoad   []func()
	closed   int
	setErr   error
	evalErr  error
	closeErr error
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{bound: make(map[string]func(args []any))}
}

func (f *fakeBrowser) SetContent(html string) error {
	f.content = append(f.content, html)
	return f.setErr
}

func (f *fakeBrowser) Evaluate(script string) error {
	f.scripts = append(f.scripts, script)
	return f.evalErr
}

func (f *fakeBrowser) Bind(name string, fn func(args []any)) error {
	f.bound[name] = fn
	return nil
}

func (f *fakeBrowser) OnLoad(fn func()) {
	f.onLoad = append(f.onLoad, fn)
}

func (f *fakeBrowser) load() {
	for _, fn := range f.onLoad {
		fn()
	}
}

func (f *fakeBrowser) call(name string, args ...any) {
	if fn, ok := f.bound[name]; ok {
		fn(args)
	}
}

type closingBrowser struct {
	*fakeBrowser
}

func (c closingBrowser) Close() error {
	c.closed++
	return c.closeErr
}

// recorder logs every notification it receives as "<id>:<event>".
type recorder struct {
	id  string
	log *[]string
}

func (r *recorder) CenterChanged()   { *r.log = append(*r.log, r.id+":center") }
func (r *recorder) ZoomChanged()     { *r.log = append(*r.log, r.id+":zoom") }
func (r *recorder) AddressResolved() { *r.log = append(*r.log, r.id+":address") }

func newMap(t *testing.T) (*gmap.GMap, *fakeBrowser) {
	t.Helper()
	b := newFakeBrowser()
	logger, _ := zap.NewDevelopment()
	m, err := gmap.New(b, gmap.WithLogger(logger))
	require.NoError(t, err)
	return m, b
}

func newLoadedMap(t *testing.T) (*gmap.GMap, *fakeBrowser) {
	t.Helper()
	m, b := newMap(t)
	b.load()
	b.scripts = nil
	return m, b
}

func TestNewLoadsSelfContainedDocument(t *testing.T) {
	_, b := newMap(t)
	require.Len(t, b.content, 1)
	assert.Contains(t, b.content[0], "window.init = function")
	assert.Contains(t, b.content[0], `<div id="map_canvas">`)
	assert.NotContains(t, b.content[0], `src="./`)
	assert.Len(t, b.onLoad, 1)
	assert.Empty(t, b.scripts)
}

func TestNewWithAPIKey(t *testing.T) {
	b := newFakeBrowser()
	_, err := gmap.New(b, gmap.WithAPIKey("secret-key"))
	require.NoError(t, err)
	assert.Contains(t, b.content[0], "key=secret-key")
}

func TestDefaults(t *testing.T) {
	m, _ := newMap(t)

	center, err := m.Center()
	require.NoError(t, err)
	assert.True(t, center.Equal(latlng.New(0, 0)))

	zoom, err := m.Zoom()
	require.NoError(t, err)
	assert.Equal(t, gmap.DefaultZoom, zoom)

	mt, err := m.Type()
	require.NoError(t, err)
	assert.Equal(t, gmap.Roadmap, mt)

	addr, err := m.Address()
	require.NoError(t, err)
	assert.Empty(t, addr)

	loaded, err := m.Loaded()
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestSetZoomRoundTrip(t *testing.T) {
	m, _ := newLoadedMap(t)
	for z := gmap.MinZoom; z <= gmap.MaxZoom; z++ {
		require.NoError(t, m.SetZoom(z))
		got, err := m.Zoom()
		require.NoError(t, err)
		assert.Equal(t, z, got)
	}
}

func TestSetZoomRejectsOutOfRange(t *testing.T) {
	tests := []int{-1, 21, -100, 1000}
	for _, zoom := range tests {
		t.Run(fmt.Sprint(zoom), func(t *testing.T) {
			m, b := newLoadedMap(t)
			require.NoError(t, m.SetZoom(12))
			b.scripts = nil

			var log []string
			require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))

			err := m.SetZoom(zoom)
			assert.ErrorIs(t, err, gmap.ErrInvalidArgument)
			got, _ := m.Zoom()
			assert.Equal(t, 12, got)
			assert.Empty(t, b.scripts)
			assert.Empty(t, log)
		})
	}
}

func TestSetCenterRejectsNonFinite(t *testing.T) {
	tests := []latlng.LatLng{
		latlng.New(math.Inf(1), 5),
		latlng.New(33, math.Inf(-1)),
		latlng.New(math.NaN(), 0),
	}
	for _, center := range tests {
		t.Run(center.String(), func(t *testing.T) {
			m, b := newLoadedMap(t)
			var log []string
			require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))

			err := m.SetCenter(center)
			assert.ErrorIs(t, err, gmap.ErrInvalidArgument)
			got, _ := m.Center()
			assert.Equal(t, latlng.New(0, 0), got)
			assert.Empty(t, b.scripts)
			assert.Empty(t, log)
		})
	}
}

func TestSetZoomEmitsCommandAndNotifies(t *testing.T) {
	m, b := newLoadedMap(t)
	var log []string
	require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))

	require.NoError(t, m.SetZoom(3))
	assert.Equal(t, []string{"setZoom(3)"}, b.scripts)
	assert.Equal(t, []string{"a:zoom"}, log)

	require.NoError(t, m.SetZoom(3))
	assert.Len(t, b.scripts, 1, "unchanged zoom must not be forwarded")
	assert.Len(t, log, 1, "unchanged zoom must not notify")
}

func TestSetType(t *testing.T) {
	m, b := newLoadedMap(t)
	var log []string
	require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))

	require.NoError(t, m.SetType(gmap.Satellite))
	assert.Equal(t, []string{"setType(google.maps.MapTypeId.SATELLITE)"}, b.scripts)
	assert.Empty(t, log, "type changes are not reported")

	for _, bad := range []gmap.MapType{-1, 4} {
		assert.ErrorIs(t, m.SetType(bad), gmap.ErrInvalidArgument)
	}
	mt, _ := m.Type()
	assert.Equal(t, gmap.Satellite, mt)
	assert.Len(t, b.scripts, 1)
}

func TestSetCenter(t *testing.T) {
	m, b := newLoadedMap(t)
	var log []string
	require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))

	require.NoError(t, m.SetCenter(latlng.New(33, 5)))
	assert.Equal(t, []string{"setCenter([33,5])"}, b.scripts)
	assert.Equal(t, []string{"a:center"}, log)

	require.NoError(t, m.SetCenter(latlng.New(33, 5)))
	assert.Len(t, b.scripts, 1, "equal center must not be forwarded")
	assert.Len(t, log, 1, "equal center must not notify")
}

func TestMutatorsBeforeLoad(t *testing.T) {
	m, b := newMap(t)
	var log []string
	require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))

	require.NoError(t, m.SetCenter(latlng.New(10, 20)))
	require.NoError(t, m.SetType(gmap.Terrain))
	require.NoError(t, m.SetZoom(15))
	require.NoError(t, m.GotoAddress("Stockholm"))
	require.NoError(t, m.ResolveAddress())
	require.NoError(t, m.AddMarker("here"))

	assert.Empty(t, b.scripts, "nothing may be evaluated before load")
	assert.Equal(t, []string{"a:center", "a:zoom"}, log)

	center, _ := m.Center()
	assert.True(t, center.Equal(latlng.New(10, 20)))
	mt, _ := m.Type()
	assert.Equal(t, gmap.Terrain, mt)
	addr, _ := m.Address()
	assert.Empty(t, addr, "gotoAddress before load is ignored")
}

func TestLoadSendsInitWithLatestState(t *testing.T) {
	m, b := newMap(t)
	require.NoError(t, m.SetZoom(15))
	require.NoError(t, m.SetType(gmap.Hybrid))
	require.NoError(t, m.SetCenter(latlng.MustParse("33.0,5.0")))

	b.load()
	require.Len(t, b.scripts, 1)
	assert.Equal(t, "init([33,5], 15, google.maps.MapTypeId.HYBRID)", b.scripts[0])
	assert.Contains(t, b.bound, "onBoundsChanged")
	assert.Contains(t, b.bound, "onAddressResolved")

	loaded, _ := m.Loaded()
	assert.True(t, loaded)

	b.load()
	assert.Len(t, b.scripts, 1, "a second load event must not re-init")
}

func TestBoundsChanged(t *testing.T) {
	m, b := newLoadedMap(t)
	var log []string
	require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))

	b.call("onBoundsChanged", 10.0, 20.0, 5.0)
	assert.Equal(t, []string{"a:center", "a:zoom"}, log)
	center, _ := m.Center()
	assert.True(t, center.Equal(latlng.New(10, 20)))
	zoom, _ := m.Zoom()
	assert.Equal(t, 5, zoom)

	b.call("onBoundsChanged", 10.0, 20.0, 5.0)
	assert.Len(t, log, 2, "identical bounds must not notify")

	b.call("onBoundsChanged", 10.0, 20.0, 6.0)
	assert.Equal(t, []string{"a:center", "a:zoom", "a:zoom"}, log)

	assert.Empty(t, b.scripts, "inbound changes are not echoed back")
}

func TestBoundsChangedArgumentDecoding(t *testing.T) {
	tests := []struct {
		name     string
		args     []any
		wantLat  float64
		wantZoom int
		changed  bool
	}{
		{name: "json floats", args: []any{1.5, 2.5, 3.0}, wantLat: 1.5, wantZoom: 3, changed: true},
		{name: "integers", args: []any{int64(4), int(5), int64(6)}, wantLat: 4, wantZoom: 6, changed: true},
		{name: "fractional zoom truncates", args: []any{1.0, 1.0, 7.9}, wantLat: 1, wantZoom: 7, changed: true},
		{name: "zoom above range clamps", args: []any{1.0, 1.0, 22.0}, wantLat: 1, wantZoom: gmap.MaxZoom, changed: true},
		{name: "string latitude", args: []any{"1", 2.0, 3.0}},
		{name: "too few", args: []any{1.0, 2.0}},
		{name: "nil", args: []any{nil, nil, nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, b := newLoadedMap(t)
			b.call("onBoundsChanged", tt.args...)
			center, _ := m.Center()
			zoom, _ := m.Zoom()
			if !tt.changed {
				assert.True(t, center.Equal(latlng.New(0, 0)))
				assert.Equal(t, gmap.DefaultZoom, zoom)
				return
			}
			assert.Equal(t, tt.wantLat, center.Latitude)
			assert.Equal(t, tt.wantZoom, zoom)
		})
	}
}

func TestAddressResolved(t *testing.T) {
	m, b := newLoadedMap(t)
	var log []string
	require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))

	require.NoError(t, m.GotoAddress("Gothenburg"))
	addr, _ := m.Address()
	assert.Equal(t, "Gothenburg", addr)
	assert.Empty(t, log, "gotoAddress reports nothing synchronously")

	require.NoError(t, m.ResolveAddress())
	assert.Equal(t, []string{`gotoAddress("Gothenburg")`, "resolveAddress()"}, b.scripts)

	b.call("onAddressResolved", "Avenyn 1, Göteborg")
	addr, _ = m.Address()
	assert.Equal(t, "Avenyn 1, Göteborg", addr)
	assert.Equal(t, []string{"a:address"}, log)

	// A late result overwrites whatever the host set in between.
	require.NoError(t, m.GotoAddress("Malmö"))
	b.call("onAddressResolved", "stale result")
	addr, _ = m.Address()
	assert.Equal(t, "stale result", addr)

	b.call("onAddressResolved", 42.0)
	addr, _ = m.Address()
	assert.Equal(t, "stale result", addr, "non-string result is dropped")
}

func TestStringArgumentsAreEscaped(t *testing.T) {
	m, b := newLoadedMap(t)
	require.NoError(t, m.GotoAddress(`Main "St"`+"\n"+`\ 1`))
	require.NoError(t, m.AddMarker(`x"); alert("y`))
	assert.Equal(t, []string{
		`gotoAddress("Main \"St\"\n\\ 1")`,
		`addMarker("x\"); alert(\"y")`,
	}, b.scripts)
}

func TestAddMarkerIsGatedOnLoad(t *testing.T) {
	m, b := newMap(t)
	require.NoError(t, m.AddMarker("early"))
	b.load()
	require.NoError(t, m.AddMarker("late"))
	assert.Equal(t, []string{
		"init([0,0], 8, google.maps.MapTypeId.ROADMAP)",
		`addMarker("late")`,
	}, b.scripts)
}

func TestListenersNotifiedInInsertionOrder(t *testing.T) {
	m, b := newLoadedMap(t)
	var log []string
	first := &recorder{id: "1", log: &log}
	second := &recorder{id: "2", log: &log}
	third := &recorder{id: "3", log: &log}
	for _, l := range []gmap.Listener{first, second, third, second} {
		require.NoError(t, m.AddListener(l))
	}

	require.NoError(t, m.SetCenter(latlng.New(1, 1)))
	require.NoError(t, m.SetZoom(4))
	b.call("onAddressResolved", "somewhere")
	assert.Equal(t, []string{
		"1:center", "2:center", "3:center",
		"1:zoom", "2:zoom", "3:zoom",
		"1:address", "2:address", "3:address",
	}, log)

	log = log[:0]
	require.NoError(t, m.RemoveListener(second))
	require.NoError(t, m.RemoveListener(&recorder{id: "1", log: &log}))
	require.NoError(t, m.SetZoom(5))
	assert.Equal(t, []string{"1:zoom", "3:zoom"}, log)
}

func TestListenerFuncs(t *testing.T) {
	m, b := newLoadedMap(t)
	var zooms int
	require.NoError(t, m.AddListener(&gmap.ListenerFuncs{OnZoom: func() { zooms++ }}))

	require.NoError(t, m.SetCenter(latlng.New(5, 5)))
	require.NoError(t, m.SetZoom(2))
	b.call("onAddressResolved", "x")
	assert.Equal(t, 1, zooms)
}

func TestListenerReentersMap(t *testing.T) {
	m, b := newLoadedMap(t)
	var log []string
	follower := &gmap.ListenerFuncs{
		OnCenter: func() {
			// Zoom in whenever the map is moved.
			z, _ := m.Zoom()
			if z < gmap.MaxZoom {
				require.NoError(t, m.SetZoom(z+1))
			}
		},
	}
	require.NoError(t, m.AddListener(follower))
	require.NoError(t, m.AddListener(&recorder{id: "r", log: &log}))

	require.NoError(t, m.SetCenter(latlng.New(1, 2)))
	zoom, _ := m.Zoom()
	assert.Equal(t, gmap.DefaultZoom+1, zoom)
	assert.Equal(t, []string{"setCenter([1,2])", "setZoom(9)"}, b.scripts)
	assert.Equal(t, []string{"r:zoom", "r:center"}, log)
}

func TestListenerRemovesItselfWhileFiring(t *testing.T) {
	m, _ := newLoadedMap(t)
	var log []string
	var once *gmap.ListenerFuncs
	once = &gmap.ListenerFuncs{OnZoom: func() {
		log = append(log, "once")
		require.NoError(t, m.RemoveListener(once))
	}}
	require.NoError(t, m.AddListener(once))
	require.NoError(t, m.AddListener(&recorder{id: "r", log: &log}))

	require.NoError(t, m.SetZoom(1))
	require.NoError(t, m.SetZoom(2))
	assert.Equal(t, []string{"once", "r:zoom", "r:zoom"}, log)
}

func TestEvaluateErrorsAreNotReturned(t *testing.T) {
	m, b := newLoadedMap(t)
	b.evalErr = errors.New("no page connected")
	assert.NoError(t, m.SetZoom(1))
	zoom, _ := m.Zoom()
	assert.Equal(t, 1, zoom)
}

func TestDispose(t *testing.T) {
	b := closingBrowser{newFakeBrowser()}
	m, err := gmap.New(b)
	require.NoError(t, err)
	var log []string
	require.NoError(t, m.AddListener(&recorder{id: "a", log: &log}))
	b.load()

	require.NoError(t, m.Dispose())
	require.NoError(t, m.Dispose())
	assert.Equal(t, 1, b.closed)

	ops := map[string]func() error{
		"SetCenter":      func() error { return m.SetCenter(latlng.New(1, 1)) },
		"SetZoom":        func() error { return m.SetZoom(1) },
		"SetType":        func() error { return m.SetType(gmap.Hybrid) },
		"GotoAddress":    func() error { return m.GotoAddress("x") },
		"ResolveAddress": func() error { return m.ResolveAddress() },
		"AddMarker":      func() error { return m.AddMarker("x") },
		"AddListener":    func() error { return m.AddListener(&gmap.ListenerFuncs{}) },
		"RemoveListener": func() error { return m.RemoveListener(&gmap.ListenerFuncs{}) },
		"Center":         func() error { _, err := m.Center(); return err },
		"Zoom":           func() error { _, err := m.Zoom(); return err },
		"Type":           func() error { _, err := m.Type(); return err },
		"Address":        func() error { _, err := m.Address(); return err },
		"Loaded":         func() error { _, err := m.Loaded(); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			assert.ErrorIs(t, err, gmap.ErrDisposed)
			var de *gmap.DisposedError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, name, de.Op)
		})
	}

	b.call("onBoundsChanged", 50.0, 50.0, 3.0)
	assert.Empty(t, log, "callbacks after dispose are dropped")
}

func TestDisposeReturnsCloseError(t *testing.T) {
	b := closingBrowser{newFakeBrowser()}
	b.closeErr = errors.New("boom")
	m, err := gmap.New(b)
	require.NoError(t, err)
	assert.EqualError(t, m.Dispose(), "boom")
}

func TestParseMapType(t *testing.T) {
	tests := []struct {
		in      string
		want    gmap.MapType
		wantErr bool
	}{
		{in: "ROADMAP", want: gmap.Roadmap},
		{in: "hybrid", want: gmap.Hybrid},
		{in: " Terrain ", want: gmap.Terrain},
		{in: "1", want: gmap.Satellite},
		{in: "4", wantErr: true},
		{in: "street", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := gmap.ParseMapType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, gmap.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, []string{"ROADMAP", "SATELLITE", "HYBRID", "TERRAIN"}, gmap.MapTypeNames())
	assert.Equal(t, "MapType(7)", gmap.MapType(7).String())
}
