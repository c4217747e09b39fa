// Package config resolves the orchestration kernel's runtime tunables from
// environment variables. There is no config file: every setting is
// optional, read once at process startup via Load, and falls back to a
// documented default when unset or unparsable.
//
// Recognized variables:
//
//	ITERM_MCP_LOG_DIR            persistence log directory (default $HOME/.iterm_mcp_logs)
//	ITERM_MCP_DEFAULT_MAX_LINES  default screen-read cap (default 1000)
//	ITERM_MCP_POLL_INTERVAL_MS   output monitor poll interval (default 250)
//	ITERM_MCP_DEDUP_TTL_S        dedup cache TTL in seconds (default 300)
//	ITERM_MCP_DEDUP_MAX          dedup cache max entries (default 1024)
package config
