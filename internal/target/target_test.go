package target

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
	"github.com/opencode-ai/iterm-orchestrator/internal/persist"
	"github.com/opencode-ai/iterm-orchestrator/internal/sessionreg"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

type fakeAgents struct {
	sessions map[string]string
	teams    map[string][]string
}

func (f fakeAgents) ResolveAgentSession(agent string) (string, bool) {
	s, ok := f.sessions[agent]
	return s, ok
}

func (f fakeAgents) TeamAgents(team string) ([]string, bool) {
	members, ok := f.teams[team]
	return members, ok
}

func newRegistry(t *testing.T) *sessionreg.Registry {
	t.Helper()
	fake := clock.NewFake(time.Unix(0, 0))
	log, err := persist.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return sessionreg.New(fake, log)
}

func TestResolver_SessionIDAndName(t *testing.T) {
	sessions := newRegistry(t)
	sess, err := sessions.Register("pane-1", "build", "")
	require.NoError(t, err)

	r := New(sessions, nil)

	ids, err := r.Resolve(types.Target{SessionID: sess.SessionID})
	require.NoError(t, err)
	assert.Equal(t, []string{sess.SessionID}, ids)

	ids, err = r.Resolve(types.Target{Name: "build"})
	require.NoError(t, err)
	assert.Equal(t, []string{sess.SessionID}, ids)

	_, err = r.Resolve(types.Target{Name: "missing"})
	assert.Error(t, err)
}

func TestResolver_TeamAndBroadcast(t *testing.T) {
	sessions := newRegistry(t)
	a, err := sessions.Register("pane-1", "a", "")
	require.NoError(t, err)
	b, err := sessions.Register("pane-2", "b", "")
	require.NoError(t, err)

	agents := fakeAgents{
		sessions: map[string]string{"agent-a": a.SessionID, "agent-b": b.SessionID},
		teams:    map[string][]string{"frontend": {"agent-a", "agent-b"}},
	}
	r := New(sessions, agents)

	ids, err := r.Resolve(types.Target{Team: "frontend"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.SessionID, b.SessionID}, ids)

	ids, err = r.Resolve(types.Target{Broadcast: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.SessionID, b.SessionID}, ids)

	_, err = r.Resolve(types.Target{Team: "backend"})
	assert.Error(t, err)
}

func TestResolver_ResolveManyContinuesPastFailures(t *testing.T) {
	sessions := newRegistry(t)
	sess, err := sessions.Register("pane-1", "build", "")
	require.NoError(t, err)

	r := New(sessions, nil)
	ok, failed := r.ResolveMany([]types.Target{
		{Name: "build"},
		{Name: "missing"},
	})
	require.Len(t, ok, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, []string{sess.SessionID}, ok[0])
}
