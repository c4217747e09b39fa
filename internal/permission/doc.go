// Package permission resolves which bash commands and named tools a
// session's bound agent may use. Every session has an effective Role
// (built-in or registered at runtime); the role maps tool names (or
// doublestar globs) to allow/deny and bash command patterns to an
// allow/deny/ask action.
//
// # Roles
//
// A Role bundles a Tools map and a Bash pattern table:
//
//	role := Role{
//		Name:  "reviewer",
//		Tools: map[string]bool{"read": true, "write": false},
//		Bash:  map[string]PermissionAction{"git *": ActionAllow, "*": ActionDeny},
//	}
//
// Built-in roles are operator (everything allowed), reviewer (read-only
// tools, a narrow read-only bash allowlist) and observer (read-only
// tools, no bash at all).
//
// # Bash pattern matching
//
// ParseBashCommand splits a raw shell command into BashCommand values
// (name, subcommand, args) using mvdan.cc/sh/v3's parser. Patterns are
// matched most-specific-first: "git commit *" beats "git *" beats "git"
// beats "*".
//
// # Checker
//
// Checker resolves the ask tier: a request that isn't pre-approved is
// published on the event bus and blocks until an external approver
// calls Respond.
//
//	checker := NewChecker(bus)
//	err := checker.Check(ctx, Request{Type: PermBash, SessionID: "s1"}, ActionAsk)
package permission
