package permission

import (
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Role is a named bundle of tool-enablement rules: which tools a bound
// agent may call and, for bash specifically, which command patterns are
// allowed/denied/ask, the same matching rules as MatchBashPermission.
type Role struct {
	Name string
	// Tools maps a tool name or doublestar glob (e.g. "read", "git_*") to
	// whether it's enabled. A tool with no matching key is denied.
	Tools map[string]bool
	// Bash maps a command pattern (see BuildPattern) to an action; the most
	// specific matching pattern wins.
	Bash map[string]PermissionAction
}

// ToolEnabled reports whether toolName is enabled under r, matching glob
// keys in Tools with doublestar semantics.
func (r Role) ToolEnabled(toolName string) bool {
	if enabled, ok := r.Tools[toolName]; ok {
		return enabled
	}
	for pattern, enabled := range r.Tools {
		if ok, err := doublestar.Match(pattern, toolName); err == nil && ok {
			return enabled
		}
	}
	return false
}

// CheckBashPermission resolves the action for a parsed bash command under
// r's pattern table, defaulting to ActionAsk when nothing matches.
func (r Role) CheckBashPermission(cmd BashCommand) PermissionAction {
	action := MatchBashPermission(cmd, r.Bash)
	if action == "" {
		return ActionAsk
	}
	return action
}

// Built-in role names.
const (
	RoleOperator = "operator"
	RoleReviewer = "reviewer"
	RoleObserver = "observer"
)

func builtInRoles() map[string]Role {
	return map[string]Role{
		RoleOperator: {
			Name:  RoleOperator,
			Tools: map[string]bool{"*": true},
			Bash:  map[string]PermissionAction{"*": ActionAllow},
		},
		RoleReviewer: {
			Name: RoleReviewer,
			Tools: map[string]bool{
				"read": true, "glob": true, "grep": true, "list": true,
				"write": false, "edit": false,
			},
			Bash: map[string]PermissionAction{
				"git status *": ActionAllow,
				"git diff *":   ActionAllow,
				"git log *":    ActionAllow,
				"ls *":         ActionAllow,
				"cat *":        ActionAllow,
				"grep *":       ActionAllow,
				"find *":       ActionAllow,
				"*":            ActionDeny,
			},
		},
		RoleObserver: {
			Name: RoleObserver,
			Tools: map[string]bool{
				"read": true, "glob": true, "grep": true, "list": true,
			},
			Bash: map[string]PermissionAction{"*": ActionDeny},
		},
	}
}

// Roles is a runtime registry of roles, seeded with the built-ins.
type Roles struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewRoles creates a Roles registry seeded with the built-in roles.
func NewRoles() *Roles {
	return &Roles{roles: builtInRoles()}
}

// Register adds or replaces a role.
func (r *Roles) Register(role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role.Name] = role
}

// Get returns a role by name.
func (r *Roles) Get(name string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[name]
	return role, ok
}

// List returns every registered role name, built-in and runtime-added.
func (r *Roles) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	return names
}
