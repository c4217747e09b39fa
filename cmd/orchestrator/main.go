// Command orchestrator runs the session orchestration kernel.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/iterm-orchestrator/cmd/orchestrator/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
