// Package web holds the static dashboard served by the webserver.
package web

import "embed"

// Assets contains the built dashboard under dist/.
//
//go:embed dist
var Assets embed.FS
