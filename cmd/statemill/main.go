// Command statemill is the CLI entrypoint for the durable state machine
// runtime.
package main

import (
	"fmt"
	"os"

	"github.com/statemill/statemill/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
