// Package orchestrator exposes the kernel's Orchestration Façade as an MCP
// server: one tool per façade operation, thin JSON marshaling only, no
// kernel logic lives here.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/iterm-orchestrator/internal/facade"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// NewServer creates an MCP server exposing k's operations as tools.
func NewServer(k *facade.Kernel) *server.MCPServer {
	s := server.NewMCPServer(
		"iterm-orchestrator",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List sessions, optionally filtered by name prefix, tag, or agent"),
		mcp.WithString("name_prefix"),
		mcp.WithString("tag"),
		mcp.WithString("agent"),
	), listSessionsHandler(k))

	s.AddTool(mcp.NewTool("create_sessions",
		mcp.WithDescription("Create one or more terminal sessions"),
		mcp.WithString("configs_json", mcp.Required(),
			mcp.Description("JSON array of {name, agent, agent_type, team, profile, command, monitor, role}")),
	), createSessionsHandler(k))

	s.AddTool(mcp.NewTool("write_to_sessions",
		mcp.WithDescription("Write content to one or more session targets"),
		mcp.WithString("messages_json", mcp.Required(),
			mcp.Description("JSON array of {content, targets:[target], execute_enter, use_encoding}")),
		mcp.WithBoolean("parallel"),
		mcp.WithBoolean("skip_duplicates"),
		mcp.WithString("caller"),
	), writeToSessionsHandler(k))

	s.AddTool(mcp.NewTool("read_sessions",
		mcp.WithDescription("Read screen contents from one or more session targets"),
		mcp.WithString("targets_json", mcp.Required(), mcp.Description("JSON array of target descriptors")),
		mcp.WithBoolean("parallel"),
		mcp.WithNumber("max_lines"),
	), readSessionsHandler(k))

	s.AddTool(mcp.NewTool("send_special_key",
		mcp.WithDescription("Send a named special key (enter, tab, escape, up, down, left, right, backspace, home, end)"),
		mcp.WithString("target_json", mcp.Required(), mcp.Description("JSON target descriptor")),
		mcp.WithString("key", mcp.Required()),
	), sendSpecialKeyHandler(k))

	s.AddTool(mcp.NewTool("send_control_character",
		mcp.WithDescription("Send a control character a-z (e.g. 'c' for Ctrl-C)"),
		mcp.WithString("target_json", mcp.Required(), mcp.Description("JSON target descriptor")),
		mcp.WithString("char", mcp.Required()),
	), sendControlCharacterHandler(k))

	s.AddTool(mcp.NewTool("lock_session",
		mcp.WithDescription("Acquire an exclusive lock on a session"),
		mcp.WithString("agent", mcp.Required()),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("reason"),
		mcp.WithNumber("ttl_seconds"),
	), lockSessionHandler(k))

	s.AddTool(mcp.NewTool("unlock_session",
		mcp.WithDescription("Release a session lock held by agent"),
		mcp.WithString("agent", mcp.Required()),
		mcp.WithString("session", mcp.Required()),
	), unlockSessionHandler(k))

	s.AddTool(mcp.NewTool("list_locks",
		mcp.WithDescription("List every currently held session lock"),
	), listLocksHandler(k))

	s.AddTool(mcp.NewTool("notify",
		mcp.WithDescription("Publish a notification from an agent"),
		mcp.WithString("agent", mcp.Required()),
		mcp.WithString("level", mcp.Required(), mcp.Description("info, warning, error, success, or blocked")),
		mcp.WithString("summary", mcp.Required()),
		mcp.WithString("context"),
		mcp.WithString("action_hint"),
	), notifyHandler(k))

	s.AddTool(mcp.NewTool("get_notifications",
		mcp.WithDescription("Fetch recent notifications, optionally filtered by agent and level"),
		mcp.WithString("agent"),
		mcp.WithString("level"),
		mcp.WithNumber("limit"),
	), getNotificationsHandler(k))

	s.AddTool(mcp.NewTool("get_agent_status_summary",
		mcp.WithDescription("Get the latest notification per agent"),
	), getAgentStatusSummaryHandler(k))

	s.AddTool(mcp.NewTool("assign_session_role",
		mcp.WithDescription("Assign a permission role to a session"),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("role", mcp.Required()),
	), assignSessionRoleHandler(k))

	s.AddTool(mcp.NewTool("check_tool_permission",
		mcp.WithDescription("Check whether a session's effective role allows a named tool"),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("tool_name", mcp.Required()),
	), checkToolPermissionHandler(k))

	s.AddTool(mcp.NewTool("list_available_roles",
		mcp.WithDescription("List every registered permission role"),
	), listAvailableRolesHandler(k))

	s.AddTool(mcp.NewTool("register_agent",
		mcp.WithDescription("Bind an agent name to a session"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("teams_json", mcp.Description("JSON array of team names")),
		mcp.WithString("role"),
	), registerAgentHandler(k))

	s.AddTool(mcp.NewTool("list_agents",
		mcp.WithDescription("List registered agents, optionally filtered by team"),
		mcp.WithString("team"),
	), listAgentsHandler(k))

	s.AddTool(mcp.NewTool("create_team",
		mcp.WithDescription("Create an agent team"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("description"),
	), createTeamHandler(k))

	s.AddTool(mcp.NewTool("create_manager",
		mcp.WithDescription("Create a manager owning a worker pool"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("workers_json", mcp.Required(), mcp.Description("JSON array of worker agent names")),
		mcp.WithString("strategy", mcp.Description("round_robin (default), role_based, least_busy, priority, or random")),
	), createManagerHandler(k))

	s.AddTool(mcp.NewTool("delegate_task",
		mcp.WithDescription("Delegate a single task to one of a manager's workers"),
		mcp.WithString("manager", mcp.Required()),
		mcp.WithString("task", mcp.Required()),
		mcp.WithString("role"),
	), delegateTaskHandler(k))

	s.AddTool(mcp.NewTool("execute_plan",
		mcp.WithDescription("Execute a multi-step DAG plan under a manager"),
		mcp.WithString("manager", mcp.Required()),
		mcp.WithString("plan_json", mcp.Required(), mcp.Description("JSON-encoded Plan{steps:[...]}")),
	), executePlanHandler(k))

	return s
}

func errResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return errResult(err)
	}
	return mcp.NewToolResultText(string(b))
}

func decodeTarget(raw string) (types.Target, error) {
	var t types.Target
	if raw == "" {
		return t, fmt.Errorf("target is required")
	}
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return t, fmt.Errorf("invalid target json: %w", err)
	}
	return t, nil
}

func listSessionsHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		filter := types.SessionFilter{
			NamePrefix: stringArg(args, "name_prefix"),
			Tag:        stringArg(args, "tag"),
			Agent:      stringArg(args, "agent"),
		}
		return jsonResult(k.ListSessions(filter)), nil
	}
}

func createSessionsHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		var configs []facade.SessionConfig
		if err := json.Unmarshal([]byte(stringArg(args, "configs_json")), &configs); err != nil {
			return errResult(err), nil
		}
		return jsonResult(k.CreateSessions(ctx, configs)), nil
	}
}

func writeToSessionsHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		var messages []facade.WriteMessage
		if err := json.Unmarshal([]byte(stringArg(args, "messages_json")), &messages); err != nil {
			return errResult(err), nil
		}
		result, err := k.WriteToSessions(ctx, messages, boolArg(args, "parallel"), boolArg(args, "skip_duplicates"), nil, stringArg(args, "caller"))
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(result), nil
	}
}

func readSessionsHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		var targets []types.Target
		if err := json.Unmarshal([]byte(stringArg(args, "targets_json")), &targets); err != nil {
			return errResult(err), nil
		}
		maxLines := int(numberArg(args, "max_lines"))
		result, err := k.ReadSessions(ctx, targets, boolArg(args, "parallel"), nil, maxLines)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(result), nil
	}
}

func sendSpecialKeyHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		tgt, err := decodeTarget(stringArg(args, "target_json"))
		if err != nil {
			return errResult(err), nil
		}
		if err := k.SendSpecialKey(ctx, tgt, stringArg(args, "key")); err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("ok"), nil
	}
}

func sendControlCharacterHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		tgt, err := decodeTarget(stringArg(args, "target_json"))
		if err != nil {
			return errResult(err), nil
		}
		c := stringArg(args, "char")
		if len(c) != 1 {
			return errResult(fmt.Errorf("char must be a single a-z character")), nil
		}
		if err := k.SendControlCharacter(ctx, tgt, c[0]); err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("ok"), nil
	}
}

func lockSessionHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		ttl := time.Duration(numberArg(args, "ttl_seconds")) * time.Second
		if err := k.LockSession(stringArg(args, "agent"), stringArg(args, "session"), stringArg(args, "reason"), ttl); err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("ok"), nil
	}
}

func unlockSessionHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if err := k.UnlockSession(stringArg(args, "agent"), stringArg(args, "session")); err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("ok"), nil
	}
}

func listLocksHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(k.ListLocks()), nil
	}
}

func notifyHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		n := k.Notify(stringArg(args, "agent"), types.NotificationLevel(stringArg(args, "level")), stringArg(args, "summary"), stringArg(args, "context"), stringArg(args, "action_hint"))
		return jsonResult(n), nil
	}
}

func getNotificationsHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		limit := int(numberArg(args, "limit"))
		ns := k.GetNotifications(stringArg(args, "agent"), types.NotificationLevel(stringArg(args, "level")), limit)
		return jsonResult(ns), nil
	}
}

func getAgentStatusSummaryHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(k.GetAgentStatusSummary()), nil
	}
}

func assignSessionRoleHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if err := k.AssignSessionRole(stringArg(args, "session_id"), stringArg(args, "role")); err != nil {
			return errResult(err), nil
		}
		return mcp.NewToolResultText("ok"), nil
	}
}

func checkToolPermissionHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		allowed := k.CheckToolPermission(stringArg(args, "session_id"), stringArg(args, "tool_name"))
		return jsonResult(map[string]bool{"allowed": allowed}), nil
	}
}

func listAvailableRolesHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(k.ListAvailableRoles()), nil
	}
}

func registerAgentHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		var teams []string
		if tj := stringArg(args, "teams_json"); tj != "" {
			if err := json.Unmarshal([]byte(tj), &teams); err != nil {
				return errResult(err), nil
			}
		}
		a, err := k.RegisterAgent(stringArg(args, "name"), stringArg(args, "session_id"), teams, stringArg(args, "role"), nil)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(a), nil
	}
}

func listAgentsHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		return jsonResult(k.ListAgents(stringArg(args, "team"))), nil
	}
}

func createTeamHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		t, err := k.CreateTeam(stringArg(args, "name"), stringArg(args, "description"))
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(t), nil
	}
}

func createManagerHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		var workers []string
		if err := json.Unmarshal([]byte(stringArg(args, "workers_json")), &workers); err != nil {
			return errResult(err), nil
		}
		strategy := types.Strategy(stringArg(args, "strategy"))
		if strategy == "" {
			strategy = types.StrategyRoundRobin
		}
		m, err := k.CreateManager(stringArg(args, "name"), workers, nil, strategy)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(m), nil
	}
}

func delegateTaskHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		outcome, err := k.DelegateTask(ctx, stringArg(args, "manager"), stringArg(args, "task"), stringArg(args, "role"))
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(outcome), nil
	}
}

func executePlanHandler(k *facade.Kernel) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		var plan types.Plan
		if err := json.Unmarshal([]byte(stringArg(args, "plan_json")), &plan); err != nil {
			return errResult(err), nil
		}
		result, err := k.ExecutePlan(ctx, stringArg(args, "manager"), plan)
		if err != nil {
			return errResult(err), nil
		}
		return jsonResult(result), nil
	}
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func numberArg(args map[string]any, key string) float64 {
	v, ok := args[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
