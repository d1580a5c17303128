// Command ape-cli is a thin command-line client for the Estimator: it
// drives the predict/report operations directly against Postgres, without
// a running server, and applies the State Store's schema migrations.
package main

import (
	"github.com/dimajoyti/ape/cmd/ape-cli/commands"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	commands.SetVersionInfo(version, buildTime, gitCommit)
	commands.Execute()
}
