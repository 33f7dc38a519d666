// Package gmap mirrors the state of a Google map running inside an embedded
// browser.
//
// A GMap keeps a host side copy of center, zoom, map type and address. Setters
// update the copy and, once the map document has loaded, forward the change as
// a script command. User interaction inside the browser flows back through two
// bound callbacks and is reported to Listeners.
//
// A GMap is not safe for concurrent use. Host calls and browser events must be
// delivered on the same goroutine, normally the UI goroutine.
package gmap

import (
	"fmt"
	"io"
	"io/fs"

	"go.uber.org/zap"

	"github.com/roffe/gmapwidget/pkg/assets"
	"github.com/roffe/gmapwidget/pkg/htmlloader"
	"github.com/roffe/gmapwidget/pkg/latlng"
)

const (
	MinZoom = 0
	MaxZoom = 20

	DefaultZoom = 8
	DefaultType = Roadmap
)

// Browser is everything the map needs from an embedded browser.
type Browser interface {
	// SetContent replaces the document with html.
	SetContent(html string) error
	// Evaluate runs script without waiting for a result.
	Evaluate(script string) error
	// Bind exposes fn to scripts as a global function called name.
	Bind(name string, fn func(args []any)) error
	// OnLoad registers fn to be called once the document has loaded.
	OnLoad(fn func())
}

// Reloader is implemented by browsers whose page can reload on its own, for
// example when the user refreshes it. The page comes back with the document
// functions and bindings but without map state. fn runs after every reload.
type Reloader interface {
	OnReload(fn func())
}

// marker is what a reloaded page needs to put a marker back.
type marker struct {
	name string
	at   latlng.LatLng
}

// TemplateData is what the map document template is executed with.
type TemplateData struct {
	APIKey string
}

type GMap struct {
	browser Browser

	center  latlng.LatLng
	zoom    int
	mapType MapType
	address string

	loaded   bool
	disposed bool

	markers   []marker
	listeners listenerList

	loader    *htmlloader.Loader
	resources fs.FS
	template  string
	apiKey    string
	log       *zap.Logger
}

type Option func(*GMap)

func WithLogger(logger *zap.Logger) Option {
	return func(m *GMap) {
		if logger != nil {
			m.log = logger.Named("gmap")
		}
	}
}

// WithTemplate loads the map document from name in resources instead of the
// embedded default. The document must define the functions init, setCenter,
// setZoom, setType, gotoAddress, resolveAddress and addMarker.
func WithTemplate(resources fs.FS, name string) Option {
	return func(m *GMap) {
		m.resources = resources
		m.template = name
	}
}

// WithLoader assembles the document with loader instead of a loader private to
// this map. Maps sharing a cached loader read the template and its scripts
// once. The loader's data must provide the APIKey field, WithAPIKey is
// ignored.
func WithLoader(loader *htmlloader.Loader) Option {
	return func(m *GMap) {
		m.loader = loader
	}
}

// WithAPIKey sets the key passed to the mapping library.
func WithAPIKey(key string) Option {
	return func(m *GMap) {
		m.apiKey = key
	}
}

// New loads the map document into browser. Setters may be used right away,
// their values are delivered to the map when the document has loaded.
func New(browser Browser, opts ...Option) (*GMap, error) {
	m := &GMap{
		browser:   browser,
		zoom:      DefaultZoom,
		mapType:   DefaultType,
		resources: assets.FS,
		template:  assets.MapTemplate,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.loader == nil {
		m.loader = htmlloader.New(m.resources,
			htmlloader.WithData(TemplateData{APIKey: m.apiKey}),
			htmlloader.WithLogger(m.log),
		)
	}
	// Registered first, some browsers finish loading inside SetContent.
	browser.OnLoad(m.loadCompleted)
	if r, ok := browser.(Reloader); ok {
		r.OnReload(m.reloaded)
	}
	if err := m.loader.Load(browser, m.template); err != nil {
		// The browser keeps the handlers, they must not act for a map
		// nobody holds.
		m.disposed = true
		return nil, fmt.Errorf("gmap: load %s: %w", m.template, err)
	}
	return m, nil
}

func (m *GMap) check(op string) error {
	if m.disposed {
		return &DisposedError{Op: op}
	}
	return nil
}

// SetCenter moves the map. Listeners are notified if the center changed, also
// before the document has loaded. Coordinates out of geographic range are
// passed on, NaN and infinities are rejected.
func (m *GMap) SetCenter(center latlng.LatLng) error {
	if err := m.check("SetCenter"); err != nil {
		return err
	}
	if !center.Finite() {
		return fmt.Errorf("%w: center %s is not finite", ErrInvalidArgument, center)
	}
	if m.center.Equal(center) {
		return nil
	}
	m.center = center
	if m.loaded {
		m.evaluate(jsCall(fnSetCenter, jsLatLng(center)))
	}
	m.fireCenterChanged()
	return nil
}

func (m *GMap) Center() (latlng.LatLng, error) {
	if err := m.check("Center"); err != nil {
		return latlng.LatLng{}, err
	}
	return m.center, nil
}

func (m *GMap) SetType(t MapType) error {
	if err := m.check("SetType"); err != nil {
		return err
	}
	if !t.Valid() {
		return fmt.Errorf("%w: map type %d", ErrInvalidArgument, int(t))
	}
	m.mapType = t
	if m.loaded {
		m.evaluate(jsCall(fnSetType, t.jsIdentifier()))
	}
	return nil
}

func (m *GMap) Type() (MapType, error) {
	if err := m.check("Type"); err != nil {
		return Roadmap, err
	}
	return m.mapType, nil
}

// SetZoom sets the zoom level, between MinZoom and MaxZoom. Not every area
// has imagery for every level.
func (m *GMap) SetZoom(zoom int) error {
	if err := m.check("SetZoom"); err != nil {
		return err
	}
	if zoom < MinZoom || zoom > MaxZoom {
		return fmt.Errorf("%w: zoom %d outside [%d,%d]", ErrInvalidArgument, zoom, MinZoom, MaxZoom)
	}
	if zoom == m.zoom {
		return nil
	}
	m.zoom = zoom
	if m.loaded {
		m.evaluate(jsCall(fnSetZoom, jsInt(zoom)))
	}
	m.fireZoomChanged()
	return nil
}

func (m *GMap) Zoom() (int, error) {
	if err := m.check("Zoom"); err != nil {
		return 0, err
	}
	return m.zoom, nil
}

// GotoAddress asks the map to geocode address and show the best match. The
// resulting center and zoom arrive later as ordinary change notifications.
// It does nothing before the document has loaded.
func (m *GMap) GotoAddress(address string) error {
	if err := m.check("GotoAddress"); err != nil {
		return err
	}
	if !m.loaded {
		m.log.Debug("gotoAddress before load ignored", zap.String("address", address))
		return nil
	}
	m.address = address
	m.evaluate(jsCall(fnGotoAddress, jsString(address)))
	return nil
}

// ResolveAddress asks the map to reverse geocode the current center. The
// result, if any, is reported through Listener.AddressResolved. It does
// nothing before the document has loaded.
func (m *GMap) ResolveAddress() error {
	if err := m.check("ResolveAddress"); err != nil {
		return err
	}
	if !m.loaded {
		m.log.Debug("resolveAddress before load ignored")
		return nil
	}
	m.evaluate(jsCall(fnResolveAddress))
	return nil
}

// Address returns the last address given or resolved. It does not follow the
// map as it moves.
func (m *GMap) Address() (string, error) {
	if err := m.check("Address"); err != nil {
		return "", err
	}
	return m.address, nil
}

// AddMarker drops a draggable marker titled name at the current center.
// Markers dragged afterwards are not tracked, a reloaded page shows them where
// they were dropped. It does nothing before the document has loaded.
func (m *GMap) AddMarker(name string) error {
	if err := m.check("AddMarker"); err != nil {
		return err
	}
	if !m.loaded {
		m.log.Debug("addMarker before load ignored", zap.String("name", name))
		return nil
	}
	m.markers = append(m.markers, marker{name: name, at: m.center})
	m.evaluate(jsCall(fnAddMarker, jsString(name)))
	return nil
}

// Loaded reports whether the map document has finished loading.
func (m *GMap) Loaded() (bool, error) {
	if err := m.check("Loaded"); err != nil {
		return false, err
	}
	return m.loaded, nil
}

func (m *GMap) AddListener(l Listener) error {
	if err := m.check("AddListener"); err != nil {
		return err
	}
	m.listeners.add(l)
	return nil
}

func (m *GMap) RemoveListener(l Listener) error {
	if err := m.check("RemoveListener"); err != nil {
		return err
	}
	m.listeners.remove(l)
	return nil
}

// Dispose releases the map. Listeners are dropped and the browser is closed
// if it implements io.Closer. Later calls fail with ErrDisposed.
func (m *GMap) Dispose() error {
	if m.disposed {
		return nil
	}
	m.disposed = true
	m.listeners.clear()
	if c, ok := m.browser.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (m *GMap) loadCompleted() {
	if m.disposed || m.loaded {
		return
	}
	m.loaded = true
	m.log.Debug("map document loaded",
		zap.Stringer("center", m.center),
		zap.Int("zoom", m.zoom),
		zap.Stringer("type", m.mapType),
	)
	// Scripts evaluated before this point are lost, init carries everything
	// the host set while the document was loading.
	m.evaluate(m.initScript())
	m.bindCallbacks()
}

// reloaded restores a page that lost its state. Geocoding requests are not
// repeated, their outcome is already part of the mirrored center and zoom.
func (m *GMap) reloaded() {
	if m.disposed || !m.loaded {
		return
	}
	m.log.Info("map page reloaded, restoring state", zap.Int("markers", len(m.markers)))
	m.evaluate(m.initScript())
	for _, mk := range m.markers {
		m.evaluate(jsCall(fnAddMarker, jsString(mk.name), jsLatLng(mk.at)))
	}
}

func (m *GMap) initScript() string {
	return jsCall(fnInit, jsLatLng(m.center), jsInt(m.zoom), m.mapType.jsIdentifier())
}

func (m *GMap) evaluate(script string) {
	m.log.Debug("evaluate", zap.String("script", script))
	if err := m.browser.Evaluate(script); err != nil {
		m.log.Warn("evaluate failed", zap.String("script", script), zap.Error(err))
	}
}

func (m *GMap) syncBounds(center latlng.LatLng, zoom int) {
	// Both values are committed before anyone is told, so a listener reading
	// the map from CenterChanged already sees the new zoom.
	centerChanged := !m.center.Equal(center)
	zoomChanged := zoom != m.zoom
	m.center = center
	m.zoom = zoom
	if centerChanged {
		m.fireCenterChanged()
	}
	if zoomChanged {
		m.fireZoomChanged()
	}
}

// resolvedAddress stores text as the current address. Results are not
// matched to requests, the last one delivered wins.
func (m *GMap) resolvedAddress(text string) {
	m.address = text
	m.fireAddressResolved()
}

func (m *GMap) fireCenterChanged() {
	for _, l := range m.listeners.snapshot() {
		if m.disposed {
			return
		}
		l.CenterChanged()
	}
}

func (m *GMap) fireZoomChanged() {
	for _, l := range m.listeners.snapshot() {
		if m.disposed {
			return
		}
		l.ZoomChanged()
	}
}

func (m *GMap) fireAddressResolved() {
	for _, l := range m.listeners.snapshot() {
		if m.disposed {
			return
		}
		l.AddressResolved()
	}
}
