// Command envgraph keeps an environment dependency graph in sync with the
// snapshots of a live execution engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/envgraph/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
