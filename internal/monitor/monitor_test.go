package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/iterm-orchestrator/internal/driver"
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
)

func newTestMonitor(t *testing.T) (*Monitor, *driver.Fake, *event.Bus) {
	t.Helper()
	fake := driver.NewFake()
	bus := event.New()
	t.Cleanup(bus.Close)
	// A long interval keeps the ticker from firing during the test; PollOnce
	// drives polls deterministically instead.
	m := New(fake, bus, time.Hour, 1000)
	return m, fake, bus
}

func TestMonitor_PublishesAppendedTextOnly(t *testing.T) {
	m, fake, bus := newTestMonitor(t)
	const sessionID = "pane-1"

	var got []event.OutputDelta
	var mu sync.Mutex
	bus.Subscribe(event.SessionOutputTopic(sessionID), func(ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Payload.(event.OutputDelta))
	})

	require.NoError(t, m.Start(sessionID, 0))

	fake.PushOutput(sessionID, "line1", "line2")
	require.NoError(t, m.PollOnce(context.Background(), sessionID))

	fake.PushOutput(sessionID, "line3")
	require.NoError(t, m.PollOnce(context.Background(), sessionID))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "line1\nline2", got[0].Text)
	assert.False(t, got[0].Overflow)
	assert.Equal(t, "line3", got[1].Text)
}

func TestMonitor_NoPublishWhenScreenUnchanged(t *testing.T) {
	m, fake, bus := newTestMonitor(t)
	const sessionID = "pane-1"

	var count int
	var mu sync.Mutex
	bus.Subscribe(event.SessionOutputTopic(sessionID), func(ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	require.NoError(t, m.Start(sessionID, 0))
	fake.PushOutput(sessionID, "line1")
	require.NoError(t, m.PollOnce(context.Background(), sessionID))
	require.NoError(t, m.PollOnce(context.Background(), sessionID))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestMonitor_OverflowForcedOnScrollbackRollover(t *testing.T) {
	m, fake, bus := newTestMonitor(t)
	const sessionID = "pane-1"

	var got []event.OutputDelta
	var mu sync.Mutex
	bus.Subscribe(event.SessionOutputTopic(sessionID), func(ev event.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Payload.(event.OutputDelta))
	})

	require.NoError(t, m.Start(sessionID, 2))
	fake.PushOutput(sessionID, "line1", "line2")
	require.NoError(t, m.PollOnce(context.Background(), sessionID))

	// ReadScreen with maxLines=2 now truncates to the tail, so the previous
	// prefix no longer matches what comes back.
	fake.PushOutput(sessionID, "line3", "line4")
	require.NoError(t, m.PollOnce(context.Background(), sessionID))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.True(t, got[1].Overflow)
}

func TestMonitor_StopAwaitsInFlightPoll(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	const sessionID = "pane-1"

	require.NoError(t, m.Start(sessionID, 0))
	require.True(t, m.Active(sessionID))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx, sessionID))
	assert.False(t, m.Active(sessionID))
}

func TestMonitor_StartTwiceFails(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	require.NoError(t, m.Start("pane-1", 0))
	err := m.Start("pane-1", 0)
	assert.Error(t, err)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
