// Package assets exposes the embedded language table, default configuration
// and bundled transform scripts.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed scripts languages.yaml default.toml
var embedded embed.FS

// Scripts returns a sub-filesystem rooted at the scripts/ directory.
// The returned fs.FS contains the bundled .js scripts and their lib/ modules.
func Scripts() fs.FS {
	sub, err := fs.Sub(embedded, "scripts")
	if err != nil {
		panic("assets: sub scripts: " + err.Error())
	}
	return sub
}

// Languages returns the YAML language strategy table.
func Languages() []byte { return mustRead("languages.yaml") }

// DefaultConfig returns the TOML defaults that user configuration is
// layered over.
func DefaultConfig() []byte { return mustRead("default.toml") }

func mustRead(name string) []byte {
	data, err := embedded.ReadFile(name)
	if err != nil {
		panic("assets: read " + name + ": " + err.Error())
	}
	return data
}
