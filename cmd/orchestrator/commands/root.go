// Package commands provides the CLI commands for the orchestrator kernel.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opencode-ai/iterm-orchestrator/internal/config"
	"github.com/opencode-ai/iterm-orchestrator/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags.
var (
	printLogs  bool
	logLevel   string
	logFile    bool
	showConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Terminal session orchestration kernel",
	Long: `orchestrator runs the session registry, dispatcher, lock manager,
and plan executor that back a fleet of terminal-bound agents.

Run 'orchestrator serve' to start the kernel process; the MCP server is
the separate orchestrator-mcp binary.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logCfg := logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			Pretty:    printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)

		if showConfig {
			cfg := config.Load()
			jsonData, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(jsonData))
			os.Exit(0)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to a timestamped file")
	rootCmd.PersistentFlags().BoolVar(&showConfig, "show-config", false, "Print resolved configuration as JSON and exit")

	rootCmd.SetVersionTemplate(fmt.Sprintf("orchestrator %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
