// Package scenarios bundles the verification flows for the lottery picker.
package scenarios

import "embed"

// FS holds the built-in scenario files at its root.
//
//go:embed *.yaml
var FS embed.FS
