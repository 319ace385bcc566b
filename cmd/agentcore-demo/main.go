// Command agentcore-demo is a small CLI that wires the Agent Façade
// (internal/agentcore) together over the rest of the Core's collaborators,
// for manual exercise of the library - not a replacement front-end.
package main

import (
	"fmt"
	"os"

	"github.com/dexto-ai/dexto-core/cmd/agentcore-demo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
