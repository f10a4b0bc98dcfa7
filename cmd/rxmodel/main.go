package main

import (
	"fmt"
	"os"

	"github.com/roach88/rxmodel/internal/cli"
)

// Version information set at build time.
var version = "dev"

func main() {
	root := cli.NewRootCommand()
	root.Version = version

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
