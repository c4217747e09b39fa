package types

import "time"

// Agent binds a stable name to a session.
type Agent struct {
	Name         string            `json:"name"`
	SessionID    string            `json:"sessionID,omitempty"`
	PersistentID string            `json:"persistentID,omitempty"`
	Teams        []string          `json:"teams,omitempty"`
	Role         string            `json:"role,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Dirty        bool              `json:"dirty,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// InTeam reports whether the agent belongs to the named team. Teams
// itself keeps insertion order, which cascade tie-breaking relies on.
func (a *Agent) InTeam(team string) bool {
	for _, t := range a.Teams {
		if t == team {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the agent record.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Teams != nil {
		clone.Teams = append([]string(nil), a.Teams...)
	}
	if a.Metadata != nil {
		clone.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Team is a named set of agents; membership itself is derived from Agent.Teams.
type Team struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Manager is a coordinator agent delegating to a set of worker agents.
type Manager struct {
	Name             string            `json:"name"`
	Workers          []string          `json:"workers"`
	WorkerRoles      map[string]string `json:"workerRoles,omitempty"`
	Strategy         Strategy          `json:"strategy"`
	RoundRobinCursor int               `json:"roundRobinCursor"`
	InFlight         map[string]int    `json:"-"`
}

// Strategy is the worker-selection policy for a Manager.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRoleBased  Strategy = "role_based"
	StrategyLeastBusy  Strategy = "least_busy"
	StrategyPriority   Strategy = "priority"
	StrategyRandom     Strategy = "random"
)

// Clone returns a deep copy of the manager record, preserving the cursor.
func (m *Manager) Clone() *Manager {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Workers = append([]string(nil), m.Workers...)
	if m.WorkerRoles != nil {
		clone.WorkerRoles = make(map[string]string, len(m.WorkerRoles))
		for k, v := range m.WorkerRoles {
			clone.WorkerRoles[k] = v
		}
	}
	clone.InFlight = nil
	return &clone
}
