// Package config embeds the default configuration shipped with voice-edge.
package config

import _ "embed"

//go:embed default.yaml
var Default []byte
