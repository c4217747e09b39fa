package facade

import (
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// RegisterAgent implements register_agent.
func (k *Kernel) RegisterAgent(name, sessionID string, teams []string, role string, metadata map[string]string) (*types.Agent, error) {
	a, err := k.agents.RegisterAgent(name, sessionID, teams, role, metadata)
	if err != nil {
		return nil, err
	}
	k.bus.Publish(event.TopicAgentRegistered, AgentRegisteredPayload{Name: name}, event.Normal)
	return a, nil
}

// AgentRegisteredPayload is published on agent.registered.
type AgentRegisteredPayload struct {
	Name string
}

// RemoveAgent implements remove_agent.
func (k *Kernel) RemoveAgent(name string) error {
	if err := k.agents.RemoveAgent(name); err != nil {
		return err
	}
	k.bus.Publish(event.TopicAgentRemoved, AgentRemovedPayload{Name: name}, event.Normal)
	return nil
}

// AgentRemovedPayload is published on agent.removed.
type AgentRemovedPayload struct {
	Name string
}

// ListAgents implements list_agents.
func (k *Kernel) ListAgents(team string) []*types.Agent {
	return k.agents.ListAgents(team)
}

// CreateTeam implements create_team.
func (k *Kernel) CreateTeam(name, description string) (*types.Team, error) {
	t, err := k.agents.CreateTeam(name, description)
	if err != nil {
		return nil, err
	}
	k.bus.Publish(event.TopicTeamCreated, TeamCreatedPayload{Name: name}, event.Normal)
	return t, nil
}

// TeamCreatedPayload is published on team.created.
type TeamCreatedPayload struct {
	Name string
}

// RemoveTeam implements remove_team.
func (k *Kernel) RemoveTeam(name string, force bool) error {
	if err := k.agents.RemoveTeam(name, force); err != nil {
		return err
	}
	k.bus.Publish(event.TopicTeamRemoved, TeamRemovedPayload{Name: name}, event.Normal)
	return nil
}

// TeamRemovedPayload is published on team.removed.
type TeamRemovedPayload struct {
	Name string
}

// AssignAgentToTeam implements assign_agent_to_team.
func (k *Kernel) AssignAgentToTeam(agent, team string) error {
	return k.agents.Assign(agent, team)
}

// RemoveAgentFromTeam implements remove_agent_from_team.
func (k *Kernel) RemoveAgentFromTeam(agent, team string) error {
	return k.agents.Unassign(agent, team)
}

// ListTeams implements list_teams.
func (k *Kernel) ListTeams() []*types.Team {
	return k.agents.ListTeams()
}
