package facade

import (
	"context"

	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/internal/permission"
	"github.com/opencode-ai/iterm-orchestrator/internal/sessionreg"
)

// AssignSessionRole implements assign_session_role.
func (k *Kernel) AssignSessionRole(sessionID, role string) error {
	if _, ok := k.roles.Get(role); !ok {
		return &kernelerr.NotFound{What: "role", Key: role}
	}
	return k.sessions.SetRole(sessionID, role)
}

// effectiveRole resolves session's role per assign_session_role's
// resolution order: the bound agent's role, else the session's own
// assigned role, else the operator built-in.
func (k *Kernel) effectiveRole(sessionID string) permission.Role {
	if agentName, ok := k.agents.BoundAgent(sessionID); ok {
		if a, ok := k.agents.GetAgent(agentName); ok && a.Role != "" {
			if role, ok := k.roles.Get(a.Role); ok {
				return role
			}
		}
	}

	if sess, ok := k.sessions.Lookup(sessionreg.LookupKey{SessionID: sessionID}); ok && sess.Role != "" {
		if role, ok := k.roles.Get(sess.Role); ok {
			return role
		}
	}

	role, _ := k.roles.Get(permission.RoleOperator)
	return role
}

// CheckToolPermission implements check_tool_permission.
func (k *Kernel) CheckToolPermission(sessionID, toolName string) bool {
	return k.effectiveRole(sessionID).ToolEnabled(toolName)
}

// ListAvailableRoles implements list_available_roles.
func (k *Kernel) ListAvailableRoles() []string {
	return k.roles.List()
}

// CheckBashCommand resolves a session's effective role's bash policy for a
// raw shell command: allowed commands pass, denied ones come back as a
// permission.RejectedError, and ask-tier commands block on an external
// approver resolving the matching Checker.Ask request via RespondToPermissionRequest.
func (k *Kernel) CheckBashCommand(ctx context.Context, sessionID, command string) error {
	role := k.effectiveRole(sessionID)

	cmds, err := permission.ParseBashCommand(command)
	if err != nil {
		return &kernelerr.InvalidArgument{Field: "command", Reason: err.Error()}
	}

	for _, cmd := range cmds {
		action := role.CheckBashPermission(cmd)
		req := permission.Request{
			Type:      permission.PermBash,
			Pattern:   []string{permission.BuildPattern(cmd)},
			SessionID: sessionID,
			Title:     command,
		}
		if err := k.checker.Check(ctx, req, action); err != nil {
			return err
		}
	}
	return nil
}

// RespondToPermissionRequest resolves a pending Checker.Ask call raised by
// CheckBashCommand. action is one of "once", "always", "reject".
func (k *Kernel) RespondToPermissionRequest(requestID, action string) {
	k.checker.Respond(requestID, action)
}
