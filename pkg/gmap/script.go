package gmap

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/roffe/gmapwidget/pkg/latlng"
)

// Script functions the map document has to define.
const (
	fnInit           = "init"
	fnSetCenter      = "setCenter"
	fnSetZoom        = "setZoom"
	fnSetType        = "setType"
	fnGotoAddress    = "gotoAddress"
	fnResolveAddress = "resolveAddress"
	fnAddMarker      = "addMarker"
)

func jsCall(fn string, args ...string) string {
	return fn + "(" + strings.Join(args, ", ") + ")"
}

func jsLatLng(c latlng.LatLng) string {
	return "[" + c.String() + "]"
}

func jsInt(n int) string {
	return strconv.Itoa(n)
}

// jsString returns s as a double quoted literal. JSON string syntax is a subset
// of JavaScript string syntax, so quotes, backslashes and line breaks in s can
// not terminate the literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
