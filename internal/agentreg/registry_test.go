package agentreg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
	"github.com/opencode-ai/iterm-orchestrator/internal/persist"
)

func newTestRegistry(t *testing.T, autoCreate bool) (*Registry, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Unix(0, 0))
	log, err := persist.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return New(fake, log, autoCreate), fake
}

func TestRegistry_RegisterAgentAutoCreatesTeam(t *testing.T) {
	r, _ := newTestRegistry(t, true)

	a, err := r.RegisterAgent("agent-a", "sess-1", []string{"frontend"}, "worker", nil)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", a.SessionID)

	teams := r.ListTeams()
	require.Len(t, teams, 1)
	assert.Equal(t, "frontend", teams[0].Name)
}

func TestRegistry_RegisterAgentUnknownTeamFailsWithoutAutoCreate(t *testing.T) {
	r, _ := newTestRegistry(t, false)

	_, err := r.RegisterAgent("agent-a", "sess-1", []string{"frontend"}, "worker", nil)
	assert.Error(t, err)
}

func TestRegistry_RegisterAgentIsIdempotentByName(t *testing.T) {
	r, _ := newTestRegistry(t, true)

	_, err := r.RegisterAgent("agent-a", "sess-1", nil, "", nil)
	require.NoError(t, err)
	a, err := r.RegisterAgent("agent-a", "sess-2", nil, "lead", nil)
	require.NoError(t, err)

	assert.Equal(t, "sess-2", a.SessionID)
	assert.Equal(t, "lead", a.Role)
	assert.Len(t, r.ListAgents(""), 1)
}

func TestRegistry_RemoveTeamRefusesNonEmptyWithoutForce(t *testing.T) {
	r, _ := newTestRegistry(t, true)

	_, err := r.RegisterAgent("agent-a", "sess-1", []string{"frontend"}, "", nil)
	require.NoError(t, err)

	err = r.RemoveTeam("frontend", false)
	assert.Error(t, err)

	err = r.RemoveTeam("frontend", true)
	require.NoError(t, err)
	assert.Len(t, r.ListTeams(), 0)

	agents := r.ListAgents("")
	require.Len(t, agents, 1)
	assert.False(t, agents[0].InTeam("frontend"))
}

func TestRegistry_AssignAndUnassignPreserveOrder(t *testing.T) {
	r, _ := newTestRegistry(t, true)

	_, err := r.RegisterAgent("agent-a", "sess-1", nil, "", nil)
	require.NoError(t, err)
	_, err = r.CreateTeam("frontend", "")
	require.NoError(t, err)
	_, err = r.CreateTeam("backend", "")
	require.NoError(t, err)

	require.NoError(t, r.Assign("agent-a", "backend"))
	require.NoError(t, r.Assign("agent-a", "frontend"))

	assert.Equal(t, []string{"backend", "frontend"}, r.AgentTeamsInOrder("agent-a"))

	require.NoError(t, r.Unassign("agent-a", "backend"))
	assert.Equal(t, []string{"frontend"}, r.AgentTeamsInOrder("agent-a"))
}

func TestRegistry_ResolveAgentSessionAndBoundAgent(t *testing.T) {
	r, _ := newTestRegistry(t, true)

	_, err := r.RegisterAgent("agent-a", "sess-1", nil, "", nil)
	require.NoError(t, err)

	sessionID, ok := r.ResolveAgentSession("agent-a")
	require.True(t, ok)
	assert.Equal(t, "sess-1", sessionID)

	name, ok := r.BoundAgent("sess-1")
	require.True(t, ok)
	assert.Equal(t, "agent-a", name)

	_, ok = r.ResolveAgentSession("missing")
	assert.False(t, ok)
}

func TestRegistry_TeamAgentsReportsUnknownTeam(t *testing.T) {
	r, _ := newTestRegistry(t, true)

	_, ok := r.TeamAgents("ghost")
	assert.False(t, ok)

	_, err := r.RegisterAgent("agent-a", "sess-1", []string{"frontend"}, "", nil)
	require.NoError(t, err)

	members, ok := r.TeamAgents("frontend")
	require.True(t, ok)
	assert.Equal(t, []string{"agent-a"}, members)
}

func TestRegistry_CreateTeamNameConflict(t *testing.T) {
	r, _ := newTestRegistry(t, true)

	_, err := r.CreateTeam("frontend", "")
	require.NoError(t, err)
	_, err = r.CreateTeam("frontend", "")
	assert.Error(t, err)
}

func TestRegistry_RemoveAgentIsNoOpWhenUnknown(t *testing.T) {
	r, _ := newTestRegistry(t, true)
	assert.NoError(t, r.RemoveAgent("ghost"))
}
