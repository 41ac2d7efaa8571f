// Command yolsda is the entry point for the Yolsda entrepreneurship
// assistant. It provides a CLI interface (via Cobra) and an HTTP server with
// the chat web UI.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/yolsda-go/cmd/yolsda/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
