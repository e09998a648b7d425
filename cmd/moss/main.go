// Command moss runs and inspects scenarios for the moss reactive state
// runtime.
package main

import (
	"fmt"
	"os"

	"github.com/4rchr4y/moss/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
