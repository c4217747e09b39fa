package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/opencode-ai/iterm-orchestrator/internal/config"
	"github.com/opencode-ai/iterm-orchestrator/internal/driver"
	"github.com/opencode-ai/iterm-orchestrator/internal/facade"
	"github.com/opencode-ai/iterm-orchestrator/internal/logging"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kernel and block until signalled",
	Long: `Start the orchestration kernel (registries, dispatcher, lock
manager, plan executor, output monitor) and keep it running.

This wires an in-memory driver.Fake since the terminal emulator itself is
supplied by the embedding process (see orchestrator-mcp); it is useful for
exercising persistence and plan execution standalone.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logging.Info().Str("version", Version).Str("logDir", cfg.LogDir).Msg("starting orchestrator kernel")

	k, err := facade.New(cfg, driver.NewFake())
	if err != nil {
		return err
	}
	defer k.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down orchestrator kernel")
	return nil
}
