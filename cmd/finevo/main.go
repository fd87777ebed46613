// Command finevo runs the self-evolving financial analysis tool engine's
// CLI: synthesize, execute, list, bootstrap, and evaluate tools.
package main

import (
	"fmt"
	"os"

	"finevo/internal/cliapp"
)

func main() {
	if err := cliapp.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
