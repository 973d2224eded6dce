// modelctl is a thin introspection and exercise CLI over the model
// lifecycle runtime core: manifest validation, selection diagnostics,
// installs, and LLM streaming, each driving the same pkg/ components a
// host application embeds directly.
package main

import (
	"fmt"
	"os"

	"github.com/modelrt/corerun/cmd/modelctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
