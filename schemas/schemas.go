// Package schemas embeds the JSON schemas for .ocrlab.yaml and the
// evaluation start request.
package schemas

import _ "embed"

//go:embed config.schema.json
var ConfigSchemaJSON string

//go:embed start_request.schema.json
var StartRequestSchemaJSON string
