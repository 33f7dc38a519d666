// Package latlngentry is a text entry for "lat,lon" coordinates.
package latlngentry

import (
	"math"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"

	"github.com/roffe/gmapwidget/pkg/latlng"
)

type Widget struct {
	widget.Entry

	// OnCoordinate is called when the user edits the text into a well formed
	// coordinate. Malformed text is ignored.
	OnCoordinate func(latlng.LatLng)

	setting bool
}

func New() *Widget {
	entry := &Widget{}
	entry.ExtendBaseWidget(entry)
	entry.PlaceHolder = "lat,lon"
	entry.Entry.OnChanged = entry.changed
	return entry
}

// SetCoordinate shows c without calling OnCoordinate.
func (e *Widget) SetCoordinate(c latlng.LatLng) {
	e.setting = true
	defer func() { e.setting = false }()
	e.SetText(c.String())
}

// Coordinate parses the current text.
func (e *Widget) Coordinate() (latlng.LatLng, bool) {
	return latlng.Parse(e.Text)
}

func (e *Widget) changed(text string) {
	if e.setting || e.OnCoordinate == nil {
		return
	}
	if c, ok := latlng.Parse(text); ok {
		e.OnCoordinate(c)
	}
}

func (e *Widget) TypedRune(r rune) {
	if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' || r == ' ' {
		e.Entry.TypedRune(r)
	}
}

func (e *Widget) TypedShortcut(shortcut fyne.Shortcut) {
	paste, ok := shortcut.(*fyne.ShortcutPaste)
	if !ok {
		e.Entry.TypedShortcut(shortcut)
		return
	}

	if pasteable(paste.Clipboard.Content()) {
		e.Entry.TypedShortcut(shortcut)
	}
}

// pasteable accepts a full coordinate or a single number.
func pasteable(content string) bool {
	if _, ok := latlng.Parse(content); ok {
		return true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(content), 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}
