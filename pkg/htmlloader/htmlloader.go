// Package htmlloader turns an HTML template and the local scripts it references
// into a single self-contained document.
//
// Browsers embedded in a desktop window can not always resolve relative URLs
// (the template may live inside the binary, or be served from a different
// origin), so the document is handed over as content instead of being
// navigated to. Every <script src="./name"></script> element is replaced by an
// inline script holding the contents of name.
package htmlloader

import (
	"bytes"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	localPrefix   = "./"
	inlineOpenTag = `<script type="text/javascript">`
	closeTag      = "</script>"

	notFoundText = "File not found!"
)

// ContentSetter is the part of an embedded browser the loader needs.
type ContentSetter interface {
	SetContent(document string) error
}

type Loader struct {
	resources fs.FS
	cache     *ttlcache.Cache[string, string]
	data      any
	log       *zap.Logger
}

type Option func(*Loader)

// WithCache keeps resource contents around for ttl so that several widgets
// assembling the same template read each script once.
func WithCache(ttl time.Duration) Option {
	return func(l *Loader) {
		l.cache = ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](ttl),
		)
	}
}

// WithData executes the template with html/template and data before scripts
// are inlined. Inlined scripts are never executed as templates.
func WithData(data any) Option {
	return func(l *Loader) {
		l.data = data
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.log = logger.Named("htmlloader")
		}
	}
}

func New(resources fs.FS, opts ...Option) *Loader {
	l := &Loader{
		resources: resources,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load assembles the named template and sets it as the browser content.
func Load(browser ContentSetter, resources fs.FS, name string) error {
	return New(resources).Load(browser, name)
}

func (l *Loader) Load(browser ContentSetter, name string) error {
	return browser.SetContent(l.Assemble(name))
}

// Assemble returns the named template with all local scripts inlined.
// Missing or unreadable files never abort assembly, their place is taken by a
// short diagnostic text so the failure is visible in the rendered page.
func (l *Loader) Assemble(name string) string {
	text := l.content(name)
	if l.data != nil {
		text = l.execute(name, text)
	}
	return l.inlineScripts(text)
}

func (l *Loader) execute(name, text string) string {
	tpl, err := template.New(name).Parse(text)
	if err != nil {
		l.log.Warn("template parse failed", zap.String("name", name), zap.Error(err))
		return "Could not parse template: " + err.Error()
	}
	var out bytes.Buffer
	if err := tpl.Execute(&out, l.data); err != nil {
		l.log.Warn("template execution failed", zap.String("name", name), zap.Error(err))
		return "Could not execute template: " + err.Error()
	}
	return out.String()
}

// inlineScripts copies the template token by token into a new buffer. Because
// the input is never modified, replacing one element can not shift the
// position of any element that follows it.
func (l *Loader) inlineScripts(doc string) string {
	var out bytes.Buffer
	out.Grow(len(doc))

	z := html.NewTokenizer(strings.NewReader(doc))
	skipping := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				l.log.Warn("template tokenizer stopped", zap.Error(err))
			}
			break
		}
		raw := append([]byte(nil), z.Raw()...)

		if skipping {
			if tt == html.EndTagToken {
				if name, _ := z.TagName(); string(name) == "script" {
					skipping = false
				}
			}
			continue
		}

		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			tok := z.Token()
			if tok.Data == "script" {
				if src, ok := localSource(tok); ok {
					l.log.Debug("inlining script", zap.String("src", src))
					out.WriteString(inlineOpenTag)
					out.WriteString(l.content(src))
					out.WriteString(closeTag)
					skipping = tt == html.StartTagToken
					continue
				}
			}
		}
		out.Write(raw)
	}
	return out.String()
}

func localSource(tok html.Token) (string, bool) {
	for _, attr := range tok.Attr {
		if attr.Key != "src" {
			continue
		}
		if !strings.HasPrefix(attr.Val, localPrefix) {
			return "", false
		}
		return path.Clean(strings.TrimPrefix(attr.Val, localPrefix)), true
	}
	return "", false
}

func (l *Loader) content(name string) string {
	if l.cache != nil {
		if item := l.cache.Get(name); item != nil {
			return item.Value()
		}
	}
	data, err := fs.ReadFile(l.resources, name)
	if err != nil {
		l.log.Warn("resource unavailable", zap.String("name", name), zap.Error(err))
		if errors.Is(err, fs.ErrNotExist) {
			return notFoundText
		}
		return "Could not read File: " + err.Error()
	}
	text := string(data)
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if l.cache != nil {
		l.cache.Set(name, text, ttlcache.DefaultTTL)
	}
	return text
}
