// Package agentreg implements the Agent/Team Registry: binding agent
// names to sessions, grouping agents into teams, and persisting both.
package agentreg

import (
	"sync"
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/internal/persist"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// Registry is the Agent/Team Registry. A single mutex serializes every
// mutation; reads take the read half.
type Registry struct {
	mu sync.RWMutex

	clk clock.Clock
	log *persist.Log

	agents map[string]*types.Agent
	teams  map[string]*types.Team

	// autoCreateTeam, when true, lets RegisterAgent create a team named
	// in its teams list if it doesn't already exist, rather than failing.
	autoCreateTeam bool

	onDegraded func(error)
}

// New creates an empty Agent/Team Registry. autoCreateTeam controls
// whether register_agent implicitly creates unknown teams.
func New(clk clock.Clock, log *persist.Log, autoCreateTeam bool) *Registry {
	return &Registry{
		clk:            clk,
		log:            log,
		agents:         make(map[string]*types.Agent),
		teams:          make(map[string]*types.Team),
		autoCreateTeam: autoCreateTeam,
		onDegraded:     func(error) {},
	}
}

// OnDegraded registers a callback invoked (outside the registry lock)
// whenever a persistence write fails.
func (r *Registry) OnDegraded(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDegraded = fn
}

// RegisterAgent is idempotent by name: calling it again rebinds the
// agent's session, teams, role, and metadata. Teams named here are
// auto-created when the registry was constructed with autoCreateTeam;
// otherwise an unknown team is a NotFound error.
func (r *Registry) RegisterAgent(name, sessionID string, teams []string, role string, metadata map[string]string) (*types.Agent, error) {
	if name == "" {
		return nil, &kernelerr.InvalidArgument{Field: "name", Reason: "must not be empty"}
	}

	r.mu.Lock()
	now := r.clk.Now()

	for _, t := range teams {
		if _, ok := r.teams[t]; !ok {
			if !r.autoCreateTeam {
				r.mu.Unlock()
				return nil, &kernelerr.NotFound{What: "team", Key: t}
			}
			r.teams[t] = &types.Team{Name: t, CreatedAt: now}
		}
	}

	existing, ok := r.agents[name]
	if !ok {
		existing = &types.Agent{Name: name, CreatedAt: now}
		r.agents[name] = existing
	}
	existing.SessionID = sessionID
	existing.Teams = append([]string(nil), teams...)
	existing.Role = role
	existing.Metadata = metadata
	existing.UpdatedAt = now

	out := existing.Clone()
	r.mu.Unlock()

	r.persistAgent(out)
	return out, nil
}

// RemoveAgent deletes an agent. Removing an unknown agent is a no-op.
func (r *Registry) RemoveAgent(name string) error {
	r.mu.Lock()
	delete(r.agents, name)
	r.mu.Unlock()
	r.persistAgentTombstone(name)
	return nil
}

// CreateTeam creates a new, empty team.
func (r *Registry) CreateTeam(name, description string) (*types.Team, error) {
	if name == "" {
		return nil, &kernelerr.InvalidArgument{Field: "name", Reason: "must not be empty"}
	}
	r.mu.Lock()
	if _, ok := r.teams[name]; ok {
		r.mu.Unlock()
		return nil, &kernelerr.NameConflict{Name: name}
	}
	team := &types.Team{Name: name, Description: description, CreatedAt: r.clk.Now()}
	r.teams[name] = team
	r.mu.Unlock()
	r.persistTeam(team)
	return team, nil
}

// RemoveTeam deletes an empty team, or any team when force is true.
func (r *Registry) RemoveTeam(name string, force bool) error {
	r.mu.Lock()
	if _, ok := r.teams[name]; !ok {
		r.mu.Unlock()
		return &kernelerr.NotFound{What: "team", Key: name}
	}
	if !force {
		for _, a := range r.agents {
			if a.InTeam(name) {
				r.mu.Unlock()
				return &kernelerr.InvalidArgument{Field: "team", Reason: "non-empty, pass force to remove anyway"}
			}
		}
	}
	delete(r.teams, name)
	if force {
		for _, a := range r.agents {
			a.Teams = removeString(a.Teams, name)
		}
	}
	r.mu.Unlock()
	r.persistTeamTombstone(name)
	return nil
}

// Assign adds agent to team, appending it to the agent's team list if not
// already present (insertion order is preserved, it's the cascade
// specificity tie-break).
func (r *Registry) Assign(agent, team string) error {
	r.mu.Lock()
	a, ok := r.agents[agent]
	if !ok {
		r.mu.Unlock()
		return &kernelerr.NotFound{What: "agent", Key: agent}
	}
	if _, ok := r.teams[team]; !ok {
		r.mu.Unlock()
		return &kernelerr.NotFound{What: "team", Key: team}
	}
	if !a.InTeam(team) {
		a.Teams = append(a.Teams, team)
		a.UpdatedAt = r.clk.Now()
	}
	out := a.Clone()
	r.mu.Unlock()
	r.persistAgent(out)
	return nil
}

// Unassign removes agent from team.
func (r *Registry) Unassign(agent, team string) error {
	r.mu.Lock()
	a, ok := r.agents[agent]
	if !ok {
		r.mu.Unlock()
		return &kernelerr.NotFound{What: "agent", Key: agent}
	}
	a.Teams = removeString(a.Teams, team)
	a.UpdatedAt = r.clk.Now()
	out := a.Clone()
	r.mu.Unlock()
	r.persistAgent(out)
	return nil
}

// ListAgents returns every agent, or every agent in team when team != "".
func (r *Registry) ListAgents(team string) []*types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*types.Agent
	for _, a := range r.agents {
		if team != "" && !a.InTeam(team) {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// ListTeams returns every team.
func (r *Registry) ListTeams() []*types.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Team, 0, len(r.teams))
	for _, t := range r.teams {
		clone := *t
		out = append(out, &clone)
	}
	return out
}

// GetAgent returns a clone of the named agent record, or (nil, false) if
// unknown.
func (r *Registry) GetAgent(name string) (*types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// ResolveAgentSession implements target.AgentLookup and
// sessionreg.AgentSessionResolver's session-side half.
func (r *Registry) ResolveAgentSession(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok || a.SessionID == "" {
		return "", false
	}
	return a.SessionID, true
}

// BoundAgent implements sessionreg.AgentSessionResolver's reverse lookup.
func (r *Registry) BoundAgent(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.SessionID == sessionID {
			return a.Name, true
		}
	}
	return "", false
}

// TeamAgents implements target.AgentLookup: the member names of team, in
// no particular order, and whether the team exists at all.
func (r *Registry) TeamAgents(team string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.teams[team]; !ok {
		return nil, false
	}
	var members []string
	for _, a := range r.agents {
		if a.InTeam(team) {
			members = append(members, a.Name)
		}
	}
	return members, true
}

// AgentTeamsInOrder returns agent's teams in the insertion order recorded
// at assignment time, the order cascade specificity tie-breaks on.
func (r *Registry) AgentTeamsInOrder(agent string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agent]
	if !ok {
		return nil
	}
	return append([]string(nil), a.Teams...)
}

// RetryDirty re-attempts persistence for every agent flagged dirty by a
// previous failed write, clearing the flag on success.
func (r *Registry) RetryDirty() {
	r.mu.RLock()
	var dirty []*types.Agent
	for _, a := range r.agents {
		if a.Dirty {
			dirty = append(dirty, a.Clone())
		}
	}
	r.mu.RUnlock()

	for _, a := range dirty {
		if err := r.log.Append(persist.KindAgents, agentRecord(a)); err == nil {
			r.mu.Lock()
			if live, ok := r.agents[a.Name]; ok {
				live.Dirty = false
			}
			r.mu.Unlock()
		}
	}
}

func removeString(ss []string, target string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) persistAgent(a *types.Agent) {
	if r.log == nil {
		return
	}
	if err := r.log.Append(persist.KindAgents, agentRecord(a)); err != nil {
		r.mu.Lock()
		if live, ok := r.agents[a.Name]; ok {
			live.Dirty = true
		}
		onDegraded := r.onDegraded
		r.mu.Unlock()
		onDegraded(err)
	}
}

func (r *Registry) persistAgentTombstone(name string) {
	if r.log == nil {
		return
	}
	rec := agentRecord(&types.Agent{Name: name, UpdatedAt: r.clk.Now()})
	rec.Removed = true
	if err := r.log.Append(persist.KindAgents, rec); err != nil {
		r.onDegraded(err)
	}
}

func (r *Registry) persistTeam(t *types.Team) {
	if r.log == nil {
		return
	}
	if err := r.log.Append(persist.KindTeams, teamRecord(t, r.clk.Now())); err != nil {
		r.onDegraded(err)
	}
}

func (r *Registry) persistTeamTombstone(name string) {
	if r.log == nil {
		return
	}
	rec := teamRecord(&types.Team{Name: name}, r.clk.Now())
	rec.Removed = true
	if err := r.log.Append(persist.KindTeams, rec); err != nil {
		r.onDegraded(err)
	}
}

// Restore replays persisted agent and team records into memory, called
// once at startup. Records for the same name are applied in file order,
// so the last one (including a Removed tombstone) wins.
func (r *Registry) Restore(agents []AgentPersisted, teams []TeamPersisted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range teams {
		if rec.Removed {
			delete(r.teams, rec.Name)
			continue
		}
		r.teams[rec.Name] = &types.Team{Name: rec.Name, Description: rec.Description, CreatedAt: rec.CreatedAt}
	}
	for _, rec := range agents {
		if rec.Removed {
			delete(r.agents, rec.Name)
			continue
		}
		r.agents[rec.Name] = &types.Agent{
			Name:      rec.Name,
			SessionID: rec.SessionID,
			Teams:     rec.Teams,
			Role:      rec.Role,
			Metadata:  rec.Metadata,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
	}
}

type AgentPersisted struct {
	Kind      string            `json:"kind"`
	Version   int               `json:"version"`
	Name      string            `json:"name"`
	SessionID string            `json:"sessionID,omitempty"`
	Teams     []string          `json:"teams,omitempty"`
	Role      string            `json:"role,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Removed   bool              `json:"removed,omitempty"`
}

type TeamPersisted struct {
	Kind        string    `json:"kind"`
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Removed     bool      `json:"removed,omitempty"`
}

func agentRecord(a *types.Agent) AgentPersisted {
	return AgentPersisted{
		Kind:      "agent",
		Version:   1,
		Name:      a.Name,
		SessionID: a.SessionID,
		Teams:     a.Teams,
		Role:      a.Role,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func teamRecord(t *types.Team, now time.Time) TeamPersisted {
	return TeamPersisted{
		Kind:        "team",
		Version:     1,
		Name:        t.Name,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   now,
	}
}
