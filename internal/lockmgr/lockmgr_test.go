package lockmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
)

func TestManager_AcquireExclusive(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	m := New(fake)

	require.NoError(t, m.Acquire("sess-1", "agent-a", "editing", 0))
	err := m.Acquire("sess-1", "agent-b", "editing", 0)
	assert.Error(t, err)

	assert.Equal(t, "agent-a", m.Owner("sess-1"))
}

func TestManager_ReleaseRequiresOwner(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	m := New(fake)

	require.NoError(t, m.Acquire("sess-1", "agent-a", "", 0))
	err := m.Release("sess-1", "agent-b")
	assert.Error(t, err)

	require.NoError(t, m.Release("sess-1", "agent-a"))
	assert.Equal(t, "", m.Owner("sess-1"))
}

func TestManager_ExpiredLockCountsAsAbsent(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	m := New(fake)

	require.NoError(t, m.Acquire("sess-1", "agent-a", "", time.Minute))
	fake.Advance(2 * time.Minute)

	assert.Equal(t, "", m.Owner("sess-1"))
	require.NoError(t, m.Acquire("sess-1", "agent-b", "", 0))
	assert.Equal(t, "agent-b", m.Owner("sess-1"))
}

func TestManager_CheckWrite(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	m := New(fake)

	assert.NoError(t, m.CheckWrite("sess-1", "agent-a"))

	require.NoError(t, m.Acquire("sess-1", "agent-a", "", 0))
	assert.NoError(t, m.CheckWrite("sess-1", "agent-a"))
	assert.Error(t, m.CheckWrite("sess-1", "agent-b"))
}

func TestManager_RequestAccessAlwaysDeniedByDefault(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	m := New(fake)

	granted := m.RequestAccess("sess-1", "agent-b", "agent-a")
	assert.False(t, granted)
	require.Len(t, m.Requests(), 1)
}
