// Package assets embeds the map document template and its scripts.
package assets

import (
	"embed"
)

// MapTemplate is the name of the map document inside FS.
const MapTemplate = "GMap.html"

//go:embed GMap.html GMap.js
var FS embed.FS
