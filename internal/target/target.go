// Package target implements the Target Resolver: turning a Target
// descriptor into the concrete session ids it names.
package target

import (
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/internal/sessionreg"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// SessionLookup is the subset of the Session Registry the resolver needs.
type SessionLookup interface {
	Lookup(key sessionreg.LookupKey) (*types.Session, bool)
	List(filter types.SessionFilter) []*types.Session
}

// AgentLookup is the subset of the Agent/Team Registry the resolver needs
// to expand agent and team targets.
type AgentLookup interface {
	ResolveAgentSession(agent string) (sessionID string, ok bool)
	TeamAgents(team string) ([]string, bool)
}

// Resolver resolves Target descriptors against the Session and
// Agent/Team registries.
type Resolver struct {
	sessions SessionLookup
	agents   AgentLookup
}

// New creates a Resolver.
func New(sessions SessionLookup, agents AgentLookup) *Resolver {
	return &Resolver{sessions: sessions, agents: agents}
}

// Resolve returns the deduplicated set of session ids a Target names.
// An unresolvable target yields a ResolutionError; callers resolving a
// batch of targets should continue with the peers on error rather than
// aborting.
func (r *Resolver) Resolve(t types.Target) ([]string, error) {
	switch {
	case t.SessionID != "":
		if _, ok := r.sessions.Lookup(sessionreg.LookupKey{SessionID: t.SessionID}); !ok {
			return nil, &kernelerr.ResolutionError{Descriptor: t.Descriptor(), Reason: "no such session_id"}
		}
		return []string{t.SessionID}, nil

	case t.Name != "":
		s, ok := r.sessions.Lookup(sessionreg.LookupKey{Name: t.Name})
		if !ok {
			return nil, &kernelerr.ResolutionError{Descriptor: t.Descriptor(), Reason: "no such name"}
		}
		return []string{s.SessionID}, nil

	case t.PersistentID != "":
		s, ok := r.sessions.Lookup(sessionreg.LookupKey{PersistentID: t.PersistentID})
		if !ok {
			return nil, &kernelerr.ResolutionError{Descriptor: t.Descriptor(), Reason: "no such persistent_id"}
		}
		return []string{s.SessionID}, nil

	case t.Agent != "":
		if r.agents == nil {
			return nil, &kernelerr.ResolutionError{Descriptor: t.Descriptor(), Reason: "agent registry unavailable"}
		}
		sessionID, ok := r.agents.ResolveAgentSession(t.Agent)
		if !ok || sessionID == "" {
			return nil, &kernelerr.ResolutionError{Descriptor: t.Descriptor(), Reason: "agent has no bound session"}
		}
		return []string{sessionID}, nil

	case t.Team != "":
		if r.agents == nil {
			return nil, &kernelerr.ResolutionError{Descriptor: t.Descriptor(), Reason: "agent registry unavailable"}
		}
		members, ok := r.agents.TeamAgents(t.Team)
		if !ok {
			return nil, &kernelerr.ResolutionError{Descriptor: t.Descriptor(), Reason: "no such team"}
		}
		return dedup(r.boundSessions(members)), nil

	case t.Tag != "":
		sessions := r.sessions.List(types.SessionFilter{Tag: t.Tag})
		return dedup(liveSessionIDs(sessions)), nil

	case t.Broadcast:
		sessions := r.sessions.List(types.SessionFilter{})
		return dedup(liveSessionIDs(sessions)), nil

	default:
		return nil, &kernelerr.ResolutionError{Descriptor: "empty", Reason: "no selector set"}
	}
}

// ResolveMany resolves every target and returns the per-target results
// alongside errors for unresolvable ones; a failure in one target never
// aborts resolution of its peers.
func (r *Resolver) ResolveMany(targets []types.Target) (map[int][]string, map[int]error) {
	ok := make(map[int][]string)
	failed := make(map[int]error)
	for i, t := range targets {
		ids, err := r.Resolve(t)
		if err != nil {
			failed[i] = err
			continue
		}
		ok[i] = ids
	}
	return ok, failed
}

func (r *Resolver) boundSessions(agents []string) []string {
	var out []string
	for _, a := range agents {
		if sessionID, ok := r.agents.ResolveAgentSession(a); ok && sessionID != "" {
			out = append(out, sessionID)
		}
	}
	return out
}

func liveSessionIDs(sessions []*types.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if s.Alive {
			out = append(out, s.SessionID)
		}
	}
	return out
}

func dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
