package facade

import (
	"context"

	"github.com/opencode-ai/iterm-orchestrator/internal/driver"
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// agentLauncher maps a recognized agent_type to the CLI invocation sent
// to a freshly created session.
var agentLauncher = map[string]string{
	"claude":  "claude",
	"gemini":  "gemini",
	"codex":   "codex",
	"copilot": "gh copilot",
}

// ListSessions implements list_sessions.
func (k *Kernel) ListSessions(filter types.SessionFilter) []*types.Session {
	return k.sessions.List(filter)
}

// SessionConfig is one entry of create_sessions's configs list.
type SessionConfig struct {
	Name      string
	Agent     string
	AgentType string `json:"agent_type"`
	Team      string
	Profile   string
	Command   string
	Monitor   bool
	Role      string
}

// SessionCreationResult is the per-config outcome of create_sessions.
type SessionCreationResult struct {
	Config  SessionConfig
	Session *types.Session
	Err     error
}

// CreateSessions implements create_sessions. Each config is created
// independently; a failure on one config does not abort its peers.
func (k *Kernel) CreateSessions(ctx context.Context, configs []SessionConfig) []SessionCreationResult {
	out := make([]SessionCreationResult, len(configs))
	for i, cfg := range configs {
		out[i] = SessionCreationResult{Config: cfg}
		if cfg.AgentType != "" {
			if _, ok := agentLauncher[cfg.AgentType]; !ok {
				out[i].Err = &kernelerr.BadAgentType{AgentType: cfg.AgentType}
				continue
			}
		}

		handle, err := k.driver.Create(ctx, cfg.Name, cfg.Profile)
		if err != nil {
			out[i].Err = &kernelerr.DriverError{Kind: "create", Err: err}
			continue
		}

		sess, err := k.sessions.Register(handle, cfg.Name, "")
		if err != nil {
			out[i].Err = err
			continue
		}

		if cfg.Role != "" {
			_ = k.sessions.SetRole(sess.SessionID, cfg.Role)
		}

		if cfg.Agent != "" {
			var teams []string
			if cfg.Team != "" {
				teams = []string{cfg.Team}
			}
			if _, err := k.agents.RegisterAgent(cfg.Agent, sess.SessionID, teams, cfg.Role, nil); err != nil {
				out[i].Err = err
				continue
			}
		}

		if cfg.Monitor {
			_ = k.monitor.Start(sess.SessionID, 0)
		}

		if cfg.Command != "" {
			_ = k.driver.Write(ctx, sess.SessionID, cfg.Command, true, false)
		}
		if launcher, ok := agentLauncher[cfg.AgentType]; ok {
			_ = k.driver.Write(ctx, sess.SessionID, launcher, true, false)
		}

		k.bus.Publish(event.TopicSessionCreated, SessionCreatedPayload{SessionID: sess.SessionID}, event.Normal)
		out[i].Session = sess
	}
	return out
}

// SessionCreatedPayload is published on session.created.
type SessionCreatedPayload struct {
	SessionID string
}

// directionGeometry maps split_session's direction enum to the driver's
// (vertical, before) pair.
var directionGeometry = map[string][2]bool{
	"above": {false, true},
	"below": {false, false},
	"left":  {true, true},
	"right": {true, false},
}

// SplitResult is the outcome of split_session.
type SplitResult struct {
	Session *types.Session
}

// SplitSession implements split_session.
func (k *Kernel) SplitSession(ctx context.Context, tgt types.Target, direction, name, agent, team, command string, monitor bool) (SplitResult, error) {
	geom, ok := directionGeometry[direction]
	if !ok {
		return SplitResult{}, &kernelerr.InvalidArgument{Field: "direction", Reason: "must be one of above, below, left, right"}
	}

	sessionIDs, err := k.resolver.Resolve(tgt)
	if err != nil {
		return SplitResult{}, err
	}
	if len(sessionIDs) == 0 {
		return SplitResult{}, &kernelerr.ResolutionError{Descriptor: tgt.Descriptor(), Reason: "resolved to no sessions"}
	}

	handle, err := k.driver.Split(ctx, sessionIDs[0], geom[0], geom[1], "")
	if err != nil {
		return SplitResult{}, &kernelerr.DriverError{Kind: "split", Err: err}
	}

	sess, err := k.sessions.Register(handle, name, "")
	if err != nil {
		return SplitResult{}, err
	}

	if agent != "" {
		var teams []string
		if team != "" {
			teams = []string{team}
		}
		if _, err := k.agents.RegisterAgent(agent, sess.SessionID, teams, "", nil); err != nil {
			return SplitResult{}, err
		}
	}
	if monitor {
		_ = k.monitor.Start(sess.SessionID, 0)
	}
	if command != "" {
		_ = k.driver.Write(ctx, sess.SessionID, command, true, false)
	}

	k.bus.Publish(event.TopicSessionCreated, SessionCreatedPayload{SessionID: sess.SessionID}, event.Normal)
	return SplitResult{Session: sess}, nil
}

// SessionModification is one entry of modify_sessions's modifications list.
type SessionModification struct {
	Target          types.Target
	BackgroundColor *driver.RGB
	TabColor        *driver.RGB
	CursorColor     *driver.RGB
	Badge           *string
	Focus           bool
	SetActive       bool
}

func validateColor(field string, rgb *driver.RGB) error {
	if rgb == nil {
		return nil
	}
	if !colorInRange(rgb.Red) {
		return &kernelerr.InvalidColor{Field: field + ".red", Value: rgb.Red}
	}
	if !colorInRange(rgb.Green) {
		return &kernelerr.InvalidColor{Field: field + ".green", Value: rgb.Green}
	}
	if !colorInRange(rgb.Blue) {
		return &kernelerr.InvalidColor{Field: field + ".blue", Value: rgb.Blue}
	}
	return nil
}

// ModifySessions implements modify_sessions. Each modification resolves
// its own target and applies independently; a failure on one does not
// abort its peers.
func (k *Kernel) ModifySessions(ctx context.Context, mods []SessionModification) []error {
	errs := make([]error, len(mods))
	for i, m := range mods {
		if err := validateColor("background_color", m.BackgroundColor); err != nil {
			errs[i] = err
			continue
		}
		if err := validateColor("tab_color", m.TabColor); err != nil {
			errs[i] = err
			continue
		}
		if err := validateColor("cursor_color", m.CursorColor); err != nil {
			errs[i] = err
			continue
		}

		sessionIDs, err := k.resolver.Resolve(m.Target)
		if err != nil {
			errs[i] = err
			continue
		}

		for _, sessionID := range sessionIDs {
			if m.BackgroundColor != nil || m.TabColor != nil || m.CursorColor != nil {
				if err := k.driver.SetColors(ctx, sessionID, driver.Colors{
					Background: m.BackgroundColor,
					Tab:        m.TabColor,
					Cursor:     m.CursorColor,
				}); err != nil {
					errs[i] = &kernelerr.DriverError{Kind: "set_colors", Err: err}
					continue
				}
			}
			if m.Badge != nil {
				if err := k.driver.SetBadge(ctx, sessionID, *m.Badge); err != nil {
					errs[i] = &kernelerr.DriverError{Kind: "set_badge", Err: err}
					continue
				}
			}
			if m.Focus {
				if err := k.driver.Focus(ctx, sessionID); err != nil {
					errs[i] = &kernelerr.DriverError{Kind: "focus", Err: err}
					continue
				}
			}
			if m.SetActive {
				if err := k.driver.Focus(ctx, sessionID); err != nil {
					errs[i] = &kernelerr.DriverError{Kind: "set_active", Err: err}
					continue
				}
			}
		}
	}
	return errs
}

// SetActiveSession implements set_active_session: focuses every session
// tgt resolves to.
func (k *Kernel) SetActiveSession(ctx context.Context, tgt types.Target) error {
	return k.focusTarget(ctx, tgt)
}

// FocusSession implements focus_session.
func (k *Kernel) FocusSession(ctx context.Context, tgt types.Target) error {
	return k.focusTarget(ctx, tgt)
}

func (k *Kernel) focusTarget(ctx context.Context, tgt types.Target) error {
	sessionIDs, err := k.resolver.Resolve(tgt)
	if err != nil {
		return err
	}
	for _, sessionID := range sessionIDs {
		if err := k.driver.Focus(ctx, sessionID); err != nil {
			return &kernelerr.DriverError{Kind: "focus", Err: err}
		}
	}
	return nil
}

// SetSessionTags implements set_session_tags. It resolves session as a
// Target so it can be addressed by any selector, not just a raw id.
func (k *Kernel) SetSessionTags(tgt types.Target, tags []string) error {
	sessionIDs, err := k.resolver.Resolve(tgt)
	if err != nil {
		return err
	}
	for _, sessionID := range sessionIDs {
		if err := k.sessions.SetTags(sessionID, tags); err != nil {
			return err
		}
	}
	return nil
}

// QuerySessionsByTag implements query_sessions_by_tag.
func (k *Kernel) QuerySessionsByTag(tag string) []*types.Session {
	return k.sessions.List(types.SessionFilter{Tag: tag})
}
