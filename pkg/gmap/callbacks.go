package gmap

import (
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/roffe/gmapwidget/pkg/latlng"
)

// Callbacks the map document invokes on user interaction.
const (
	cbBoundsChanged   = "onBoundsChanged"
	cbAddressResolved = "onAddressResolved"
)

// callback decodes the untyped positional arguments of one browser callback.
// Nothing outside this file sees the raw arguments.
type callback struct {
	name   string
	arity  int
	handle func(args []any) error
}

func (m *GMap) callbacks() []callback {
	return []callback{
		{
			name:  cbBoundsChanged,
			arity: 3,
			handle: func(args []any) error {
				lat, err := argFloat(args, 0)
				if err != nil {
					return err
				}
				lon, err := argFloat(args, 1)
				if err != nil {
					return err
				}
				zoom, err := argFloat(args, 2)
				if err != nil {
					return err
				}
				m.syncBounds(latlng.New(lat, lon), clampZoom(zoom))
				return nil
			},
		},
		{
			name:  cbAddressResolved,
			arity: 1,
			handle: func(args []any) error {
				text, err := argString(args, 0)
				if err != nil {
					return err
				}
				m.resolvedAddress(text)
				return nil
			},
		},
	}
}

func (m *GMap) bindCallbacks() {
	for _, cb := range m.callbacks() {
		if err := m.browser.Bind(cb.name, m.adapt(cb)); err != nil {
			m.log.Error("bind callback", zap.String("name", cb.name), zap.Error(err))
		}
	}
}

func (m *GMap) adapt(cb callback) func(args []any) {
	return func(args []any) {
		if m.disposed {
			m.log.Debug("callback after dispose dropped", zap.String("name", cb.name))
			return
		}
		if len(args) < cb.arity {
			m.log.Warn("callback arguments missing",
				zap.String("name", cb.name),
				zap.Int("want", cb.arity),
				zap.Int("got", len(args)),
			)
			return
		}
		if err := cb.handle(args); err != nil {
			m.log.Warn("callback arguments malformed", zap.String("name", cb.name), zap.Error(err))
		}
	}
}

func argFloat(args []any, i int) (float64, error) {
	switch v := args[i].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("argument %d: %w", i, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("argument %d: want number, got %T", i, args[i])
	}
}

func argString(args []any, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d: want string, got %T", i, args[i])
	}
	return s, nil
}

// clampZoom truncates toward zero and keeps the result inside the range the
// setters accept. Some areas offer deeper zoom levels than MaxZoom.
func clampZoom(zoom float64) int {
	switch {
	case math.IsNaN(zoom):
		return MinZoom
	case zoom <= MinZoom:
		return MinZoom
	case zoom >= MaxZoom:
		return MaxZoom
	}
	return int(zoom)
}
