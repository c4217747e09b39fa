package config

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default Persistence Log directory,
// $HOME/.iterm_mcp_logs, used when ITERM_MCP_LOG_DIR is unset.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".iterm_mcp_logs")
}
