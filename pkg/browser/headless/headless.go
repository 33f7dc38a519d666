// Package headless is an embedded browser without a screen. It runs the inline
// scripts of a document in a goja JavaScript VM, which is enough to drive a map
// document against a stand-in mapping library.
//
// A Browser is not safe for concurrent use, like the VM it wraps.
package headless

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// prelude gives scripts the few browser globals map documents touch.
const prelude = `
var window = this;
var document = {
  getElementById: function(id) { return { id: id }; }
};
`

// Dispatcher runs fn on the goroutine that owns the map.
type Dispatcher func(fn func())

type Browser struct {
	vm       *goja.Runtime
	dispatch Dispatcher
	preload  []string
	binds    map[string]func(goja.FunctionCall) goja.Value
	onLoad   []func()
	loaded   bool
	log      *zap.Logger
}

type Option func(*Browser)

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
			b.log = logger.Named("headless")
		}
	}
}

// WithPreload runs script before the scripts of every document, in place of
// the external libraries a document references.
func WithPreload(script string) Option {
	return func(b *Browser) {
		b.preload = append(b.preload, script)
	}
}

func New(opts ...Option) *Browser {
	b := &Browser{
		dispatch: func(fn func()) { fn() },
		binds:    make(map[string]func(goja.FunctionCall) goja.Value),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.reset()
	return b
}

func (b *Browser) reset() {
	b.vm = goja.New()
	console := b.vm.NewObject()
	console.Set("log", b.consoleFunc(b.log.Info))
	console.Set("error", b.consoleFunc(b.log.Error))
	b.vm.Set("console", console)
	if _, err := b.vm.RunString(prelude); err != nil {
		panic(fmt.Sprintf("headless: prelude: %v", err))
	}
	for name, fn := range b.binds {
		b.vm.Set(name, fn)
	}
}

func (b *Browser) consoleFunc(logf func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		logf("console", zap.String("text", strings.Join(parts, " ")))
		return goja.Undefined()
	}
}

// SetContent starts a fresh VM, runs the preloads and the inline scripts of
// document in order, then fires the load handlers. Bindings carry over.
// Scripts referencing a src are skipped. A failing script is logged and does
// not stop the others.
func (b *Browser) SetContent(document string) error {
	scripts, err := inlineScripts(document)
	if err != nil {
		return fmt.Errorf("headless: parse document: %w", err)
	}
	b.reset()
	b.loaded = false
	for i, script := range append(append([]string(nil), b.preload...), scripts...) {
		if _, err := b.vm.RunString(script); err != nil {
			b.log.Warn("script failed", zap.Int("index", i), zap.Error(err))
		}
	}
	b.loaded = true
	handlers := b.onLoad
	b.onLoad = nil
	for _, fn := range handlers {
		b.dispatch(fn)
	}
	return nil
}

func (b *Browser) Evaluate(script string) error {
	_, err := b.vm.RunString(script)
	return err
}

// Run evaluates script and returns its exported result.
func (b *Browser) Run(script string) (any, error) {
	v, err := b.vm.RunString(script)
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}

// Bind exposes fn as a global function. Arguments are exported to Go values:
// integral numbers become int64, other numbers float64.
func (b *Browser) Bind(name string, fn func(args []any)) error {
	native := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		b.dispatch(func() { fn(args) })
		return goja.Undefined()
	}
	b.binds[name] = native
	return b.vm.Set(name, native)
}

// OnLoad registers fn for the next load. If the current document has
// already loaded fn is dispatched right away. Handlers fire once.
func (b *Browser) OnLoad(fn func()) {
	if b.loaded {
		b.dispatch(fn)
		return
	}
	b.onLoad = append(b.onLoad, fn)
}

func inlineScripts(document string) ([]string, error) {
	var scripts []string
	z := html.NewTokenizer(strings.NewReader(document))
	inScript, external := false, false
	var body strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			return scripts, nil
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data != "script" {
				continue
			}
			inScript, external = true, false
			body.Reset()
			for _, attr := range tok.Attr {
				if attr.Key == "src" {
					external = true
				}
			}
		case html.TextToken:
			if inScript {
				body.Write(z.Text())
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); inScript && string(name) == "script" {
				if !external {
					scripts = append(scripts, body.String())
				}
				inScript = false
			}
		}
	}
}
