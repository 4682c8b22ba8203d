// Command filtergraph runs conformance scenarios, plays WAV files through a
// graph and inspects journaled sessions.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/filtergraph/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
