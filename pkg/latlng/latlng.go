// Package latlng holds the coordinate value shared by the map bridge and its host UI.
package latlng

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LatLng is an immutable latitude/longitude pair in degrees.
//
// Two values are equal only when both fields have identical bit patterns, see Equal.
type LatLng struct {
	Latitude  float64
	Longitude float64
}

func New(latitude, longitude float64) LatLng {
	return LatLng{Latitude: latitude, Longitude: longitude}
}

// String returns the canonical "lat,lon" form used in script commands and text fields.
func (l LatLng) String() string {
	return formatFloat(l.Latitude) + "," + formatFloat(l.Longitude)
}

// Equal compares the raw float64 bits of both fields. It is meant for change
// detection, not geographic closeness: 0 and -0 differ, identical NaNs match.
func (l LatLng) Equal(other LatLng) bool {
	return math.Float64bits(l.Latitude) == math.Float64bits(other.Latitude) &&
		math.Float64bits(l.Longitude) == math.Float64bits(other.Longitude)
}

// Valid reports whether the pair lies within [-90,90] x [-180,180].
func (l LatLng) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// Finite reports whether neither field is NaN or infinite.
func (l LatLng) Finite() bool {
	return finite(l.Latitude) && finite(l.Longitude)
}

// Parse reads the "lat,lon" form. It reports false when the text does not hold
// exactly two comma separated finite numbers.
func Parse(text string) (LatLng, bool) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return LatLng{}, false
	}
	lat, ok := parseFinite(parts[0])
	if !ok {
		return LatLng{}, false
	}
	lon, ok := parseFinite(parts[1])
	if !ok {
		return LatLng{}, false
	}
	return LatLng{Latitude: lat, Longitude: lon}, true
}

// parseFinite rejects "inf" and "nan", which ParseFloat accepts.
func parseFinite(token string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(token), 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// MustParse is like Parse but panics on malformed input. Use it for constants only.
func MustParse(text string) LatLng {
	l, ok := Parse(text)
	if !ok {
		panic(fmt.Sprintf("latlng: malformed coordinate %q", text))
	}
	return l
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
