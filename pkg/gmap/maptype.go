package gmap

import (
	"fmt"
	"strconv"
	"strings"
)

// MapType selects the base map imagery. The integer values are part of the
// public API and match the order of the type selector in host UIs.
type MapType int

const (
	Roadmap MapType = iota
	Satellite
	Hybrid
	Terrain
)

var mapTypeNames = [...]string{
	Roadmap:   "ROADMAP",
	Satellite: "SATELLITE",
	Hybrid:    "HYBRID",
	Terrain:   "TERRAIN",
}

// MapTypeNames lists the type names in index order.
func MapTypeNames() []string {
	return append([]string(nil), mapTypeNames[:]...)
}

func (t MapType) Valid() bool {
	return t >= Roadmap && t <= Terrain
}

func (t MapType) String() string {
	if !t.Valid() {
		return "MapType(" + strconv.Itoa(int(t)) + ")"
	}
	return mapTypeNames[t]
}

// jsIdentifier is the mapping library constant for t.
func (t MapType) jsIdentifier() string {
	return "google.maps.MapTypeId." + mapTypeNames[t]
}

// ParseMapType accepts either a type name (case insensitive) or its index.
func ParseMapType(s string) (MapType, error) {
	s = strings.TrimSpace(s)
	for i, name := range mapTypeNames {
		if strings.EqualFold(s, name) {
			return MapType(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && MapType(n).Valid() {
		return MapType(n), nil
	}
	return Roadmap, fmt.Errorf("%w: unknown map type %q", ErrInvalidArgument, s)
}
