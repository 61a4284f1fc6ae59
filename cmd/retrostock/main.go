package main

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/retrostock/retrostock/internal/cmd"
	"github.com/retrostock/retrostock/internal/server/handlers"
)

// Set via ldflags:
// go build -ldflags="-X main.version=1.2.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%F)"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	// /version reports the same build as the CLI.
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		// Commands log their own specifics; this only picks the exit code.
		cmd.ExitWithCodeStderr(foundry.ExitFailure, "Command failed", err)
	}
}
