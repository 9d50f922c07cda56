package main

import (
	"fmt"
	"os"

	"codeberg.org/sigterm-de/goscribe/internal/app"
)

// Injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(app.Run(fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)))
}
