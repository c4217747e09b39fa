// Command orchestrator-mcp runs the orchestration kernel as an MCP server
// over stdio, for embedding in an MCP-speaking agent client.
package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/iterm-orchestrator/internal/config"
	"github.com/opencode-ai/iterm-orchestrator/internal/driver"
	"github.com/opencode-ai/iterm-orchestrator/internal/facade"
	"github.com/opencode-ai/iterm-orchestrator/pkg/mcpserver/orchestrator"
)

func main() {
	cfg := config.Load()

	k, err := facade.New(cfg, driver.NewFake())
	if err != nil {
		log.Fatalf("failed to start kernel: %v", err)
	}
	defer k.Close()

	s := orchestrator.NewServer(k)
	if err := server.ServeStdio(s); err != nil {
		log.Fatal(err)
	}
}
