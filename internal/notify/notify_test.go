package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

func TestBuffer_AddAndGet(t *testing.T) {
	b := New(8)
	b.Add(types.Notification{Agent: "a", Level: types.LevelInfo, Summary: "first", CreatedAt: time.Now()})
	b.Add(types.Notification{Agent: "b", Level: types.LevelWarning, Summary: "second", CreatedAt: time.Now()})

	all := b.Get("", "", 0)
	require.Len(t, all, 2)

	warnings := b.Get(types.LevelWarning, "", 0)
	require.Len(t, warnings, 1)
	assert.Equal(t, "second", warnings[0].Summary)
}

func TestBuffer_PerAgentDeque(t *testing.T) {
	b := New(8)
	b.Add(types.Notification{Agent: "a", Summary: "x"})
	b.Add(types.Notification{Agent: "b", Summary: "y"})

	aOnly := b.Get("", "a", 0)
	require.Len(t, aOnly, 1)
	assert.Equal(t, "x", aOnly[0].Summary)
}

func TestBuffer_EvictsOldestAtCapacity(t *testing.T) {
	b := New(2)
	b.Add(types.Notification{Agent: "a", Summary: "1"})
	b.Add(types.Notification{Agent: "a", Summary: "2"})
	b.Add(types.Notification{Agent: "a", Summary: "3"})

	got := b.Get("", "a", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Summary)
	assert.Equal(t, "3", got[1].Summary)
}

func TestBuffer_LatestPerAgent(t *testing.T) {
	b := New(8)
	b.Add(types.Notification{Agent: "a", Summary: "1"})
	b.Add(types.Notification{Agent: "a", Summary: "2"})
	b.Add(types.Notification{Agent: "b", Summary: "3"})

	latest := b.LatestPerAgent()
	assert.Equal(t, "2", latest["a"].Summary)
	assert.Equal(t, "3", latest["b"].Summary)
}

func TestBuffer_ClearAgentVsAll(t *testing.T) {
	b := New(8)
	b.Add(types.Notification{Agent: "a", Summary: "1"})
	b.Add(types.Notification{Agent: "b", Summary: "2"})

	b.Clear("a")
	assert.Len(t, b.Get("", "a", 0), 0)
	assert.Len(t, b.Get("", "", 0), 1)

	b.Clear("")
	assert.Len(t, b.Get("", "", 0), 0)
}

func TestFormatLine(t *testing.T) {
	line := FormatLine(types.Notification{Agent: "a", Level: types.LevelError, Summary: "oops"})
	assert.Equal(t, "[error] a: oops", line)
}
