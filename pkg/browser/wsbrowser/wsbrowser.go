// Package wsbrowser uses the system web browser as the embedded browser of a
// map. The document is served over HTTP from a local listener and scripts,
// bindings and callbacks travel over a websocket.
//
// One page is the active peer. A page that connects after the first load (a
// reload, or a second tab) starts without script state. It gets the bindings
// again and the reload handlers run so the owner can restore it.
package wsbrowser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"
	"github.com/skratchdot/open-golang/open"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed bootstrap.js
var bootstrapJS string

const (
	DefaultAddr = "127.0.0.1:0"

	bridgePath = "/bridge"
)

// ErrNotConnected is returned by Evaluate while no page is connected. The
// script is dropped.
var ErrNotConnected = errors.New("wsbrowser: no page connected")

// Dispatcher runs fn on the goroutine that owns the map, typically the UI
// goroutine. Load events and callbacks are delivered through it.
type Dispatcher func(fn func())

type Browser struct {
	addr     string
	dispatch Dispatcher
	opener   func(url string) error
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	document string
	binds    map[string]func(args []any)
	order    []string
	onLoad   []func()
	onReload []func()
	loaded   bool
	conn     *websocket.Conn
	listener net.Listener

	writeMu sync.Mutex

	srv    *http.Server
	group  *errgroup.Group
	cancel context.CancelFunc
}

type Option func(*Browser)

// WithAddr sets the listen address, DefaultAddr picks a free local port.
func WithAddr(addr string) Option {
	return func(b *Browser) {
		b.addr = addr
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(b *Browser) {
		if d != nil {
			b.dispatch = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Browser) {
		if logger != nil {
			b.log = logger.Named("wsbrowser")
		}
	}
}

// WithOpener replaces the function used by Open to launch a browser.
func WithOpener(fn func(url string) error) Option {
	return func(b *Browser) {
		b.opener = fn
	}
}

func New(opts ...Option) *Browser {
	b := &Browser{
		addr:     DefaultAddr,
		dispatch: func(fn func()) { fn() },
		opener:   open.Start,
		log:      zap.NewNop(),
		binds:    make(map[string]func(args []any)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start listens and serves until ctx is cancelled or Close is called.
func (b *Browser) Start(ctx context.Context) error {
	var l net.Listener
	err := retry.Do(func() error {
		var err error
		l, err = net.Listen("tcp", b.addr)
		return err
	},
		retry.Context(ctx),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(500*time.Millisecond),
		retry.Attempts(4),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			b.log.Warn("listen failed, retrying", zap.String("addr", b.addr), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("wsbrowser: listen %s: %w", b.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", b.serveDocument)
	mux.HandleFunc(bridgePath, b.serveBridge)

	b.mu.Lock()
	b.listener = l
	b.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	srv := b.srv
	b.mu.Unlock()

	cctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(cctx)
	b.cancel = cancel
	b.group = g

	g.Go(func() error {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		b.closeConn()
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})

	b.log.Info("serving map document", zap.String("url", b.URL()))
	return nil
}

// URL of the map document, empty before Start.
func (b *Browser) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return ""
	}
	return "http://" + b.listener.Addr().String() + "/"
}

// Open launches the system browser on the map document.
func (b *Browser) Open() error {
	u := b.URL()
	if u == "" {
		return errors.New("wsbrowser: not started")
	}
	return b.opener(u)
}

// Close stops serving and disconnects the page.
func (b *Browser) Close() error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	return b.group.Wait()
}

// SetContent replaces the document. A connected page is asked to reload and
// the load event fires again for the new document.
func (b *Browser) SetContent(html string) error {
	b.mu.Lock()
	b.document = html
	b.loaded = false
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		return b.write(conn, Message{Type: MsgReload})
	}
	return nil
}

func (b *Browser) Evaluate(script string) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return b.write(conn, Message{Type: MsgEval, Script: script})
}

func (b *Browser) Bind(name string, fn func(args []any)) error {
	b.mu.Lock()
	if _, found := b.binds[name]; !found {
		b.order = append(b.order, name)
	}
	b.binds[name] = fn
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		return b.write(conn, Message{Type: MsgBind, Name: name})
	}
	return nil
}

// OnLoad registers fn for the next load event. If the current document has
// already loaded fn is dispatched right away. Handlers fire once.
func (b *Browser) OnLoad(fn func()) {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		b.dispatch(fn)
		return
	}
	b.onLoad = append(b.onLoad, fn)
	b.mu.Unlock()
}

// OnReload registers fn to run every time a page loads the current document
// after its first load. Handlers are kept across documents.
func (b *Browser) OnReload(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReload = append(b.onReload, fn)
}

func (b *Browser) serveDocument(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	b.mu.Lock()
	doc := b.document
	b.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write([]byte(injectBootstrap(doc))); err != nil {
		b.log.Debug("write document", zap.Error(err))
	}
}

func (b *Browser) serveBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	b.log.Debug("page connected", zap.String("remote", conn.RemoteAddr().String()))

	b.mu.Lock()
	old := b.conn
	b.conn = conn
	names := append([]string(nil), b.order...)
	b.mu.Unlock()
	if old != nil {
		b.log.Info("replacing connected page", zap.String("remote", old.RemoteAddr().String()))
		old.Close()
	}

	for _, name := range names {
		if err := b.write(conn, Message{Type: MsgBind, Name: name}); err != nil {
			b.log.Warn("announce binding", zap.String("name", name), zap.Error(err))
		}
	}

	defer func() {
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
		}
		b.mu.Unlock()
		conn.Close()
		b.log.Debug("page disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Warn("websocket read", zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Warn("malformed message", zap.ByteString("data", data), zap.Error(err))
			continue
		}
		b.handle(conn, msg)
	}
}

func (b *Browser) handle(conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case MsgLoaded:
		b.mu.Lock()
		first := !b.loaded
		b.loaded = true
		handlers := b.onLoad
		if first {
			b.onLoad = nil
		} else {
			handlers = append([]func(){}, b.onReload...)
		}
		b.mu.Unlock()
		if first {
			b.log.Debug("document loaded")
		} else {
			b.log.Debug("page reloaded", zap.String("remote", conn.RemoteAddr().String()))
		}
		for _, fn := range handlers {
			b.dispatch(fn)
		}
	case MsgCall:
		b.mu.Lock()
		fn, found := b.binds[msg.Name]
		b.mu.Unlock()
		if !found {
			b.log.Warn("call to unbound function", zap.String("name", msg.Name))
			return
		}
		args := msg.Args
		b.dispatch(func() { fn(args) })
	default:
		b.log.Warn("unknown message", zap.Stringer("msg", msg))
	}
}

func (b *Browser) write(conn *websocket.Conn, msg Message) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("wsbrowser: send %s: %w", msg.Type, err)
	}
	return nil
}

func (b *Browser) closeConn() {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn == nil {
		return
	}
	b.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	b.writeMu.Unlock()
	conn.Close()
}

// injectBootstrap places the bridge script first in <head> so that it is
// installed before any document script runs.
func injectBootstrap(doc string) string {
	tag := "<script type=\"text/javascript\">" + bootstrapJS + "</script>"
	lower := strings.ToLower(doc)
	if i := strings.Index(lower, "<head"); i != -1 {
		if j := strings.IndexByte(doc[i:], '>'); j != -1 {
			at := i + j + 1
			return doc[:at] + tag + doc[at:]
		}
	}
	return tag + doc
}
