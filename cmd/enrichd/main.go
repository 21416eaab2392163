// Command enrichd drives the honeypot enrichment core: the multi-source
// IP/ASN cascade, its staleness/backfill batch jobs, blob-cache
// maintenance, and a thin read-only HTTP query surface.
package main

import (
	"fmt"
	"os"

	"github.com/cowrie-intel/enrichd/internal/cli"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.Version = version
	cli.GitCommit = gitCommit
	cli.BuildDate = buildDate

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
