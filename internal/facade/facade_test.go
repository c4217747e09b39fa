package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/iterm-orchestrator/internal/config"
	"github.com/opencode-ai/iterm-orchestrator/internal/driver"
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

func newKernel(t *testing.T) (*Kernel, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		LogDir:          dir,
		DefaultMaxLines: 100,
		PollIntervalMS:  250,
		DedupTTLSeconds: 300,
		DedupMaxEntries: 1024,
	}
	k, err := New(cfg, driver.NewFake())
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })
	return k, dir
}

func TestCreateSessionsAndList(t *testing.T) {
	k, _ := newKernel(t)
	ctx := context.Background()

	results := k.CreateSessions(ctx, []SessionConfig{
		{Name: "s1"},
		{Name: "s2", AgentType: "bogus"},
	})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Session)
	assert.Error(t, results[1].Err)

	sessions := k.ListSessions(types.SessionFilter{})
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].Name)
}

func TestWriteToSessionsDeliversContent(t *testing.T) {
	k, _ := newKernel(t)
	ctx := context.Background()

	results := k.CreateSessions(ctx, []SessionConfig{{Name: "s1"}})
	require.NoError(t, results[0].Err)
	sessionID := results[0].Session.SessionID

	_, err := k.WriteToSessions(ctx, []WriteMessage{
		{Content: "echo hi", Targets: []types.Target{{SessionID: sessionID}}, ExecuteEnter: true},
	}, false, false, nil, "tester")
	require.NoError(t, err)

	fake := k.driver.(*driver.Fake)
	writes := fake.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "echo hi", writes[0].Content)
}

func TestLockSessionBlocksOtherOwner(t *testing.T) {
	k, _ := newKernel(t)
	ctx := context.Background()

	results := k.CreateSessions(ctx, []SessionConfig{{Name: "s1"}})
	sessionID := results[0].Session.SessionID

	require.NoError(t, k.LockSession("alice", sessionID, "working", time.Minute))

	result, err := k.WriteToSessions(ctx, []WriteMessage{
		{Content: "hello", Targets: []types.Target{{SessionID: sessionID}}},
	}, false, false, nil, "bob")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Error(t, result.Entries[0].Err)

	require.NoError(t, k.UnlockSession("alice", sessionID))
	result, err = k.WriteToSessions(ctx, []WriteMessage{
		{Content: "hello", Targets: []types.Target{{SessionID: sessionID}}},
	}, false, false, nil, "bob")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.NoError(t, result.Entries[0].Err)
}

func TestNotifyPersistsAcrossRestart(t *testing.T) {
	k, dir := newKernel(t)
	n := k.Notify("alice", types.LevelInfo, "done with task", "", "")
	assert.Equal(t, "alice", n.Agent)
	require.NoError(t, k.Close())

	cfg := &config.Config{LogDir: dir, DefaultMaxLines: 100, PollIntervalMS: 250, DedupTTLSeconds: 300, DedupMaxEntries: 1024}
	k2, err := New(cfg, driver.NewFake())
	require.NoError(t, err)
	defer k2.Close()

	got := k2.GetNotifications("alice", "", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "done with task", got[0].Summary)
}

func TestCheckBashCommandAllowDeny(t *testing.T) {
	k, _ := newKernel(t)
	ctx := context.Background()

	results := k.CreateSessions(ctx, []SessionConfig{{Name: "s1", Role: "reviewer"}})
	sessionID := results[0].Session.SessionID

	require.NoError(t, k.CheckBashCommand(ctx, sessionID, "git status"))
	assert.Error(t, k.CheckBashCommand(ctx, sessionID, "rm -rf /tmp/x"))
}

func TestCheckToolPermissionResolvesEffectiveRole(t *testing.T) {
	k, _ := newKernel(t)
	ctx := context.Background()

	results := k.CreateSessions(ctx, []SessionConfig{{Name: "s1", Role: "observer"}})
	sessionID := results[0].Session.SessionID

	assert.True(t, k.CheckToolPermission(sessionID, "read"))
	assert.False(t, k.CheckToolPermission(sessionID, "write"))
}

func TestDelegateTaskRunsAgainstWorkerSession(t *testing.T) {
	k, _ := newKernel(t)
	ctx := context.Background()

	results := k.CreateSessions(ctx, []SessionConfig{{Name: "s1", Agent: "worker1"}})
	require.NoError(t, results[0].Err)

	_, err := k.CreateManager("mgr", []string{"worker1"}, nil, types.StrategyRoundRobin)
	require.NoError(t, err)

	outcome, err := k.DelegateTask(ctx, "mgr", "echo hi", "")
	require.NoError(t, err)
	assert.Equal(t, types.StepSucceeded, outcome.State)
	assert.Equal(t, "worker1", outcome.Worker)

	fake := k.driver.(*driver.Fake)
	require.Len(t, fake.Writes(), 1)
	assert.Equal(t, "echo hi", fake.Writes()[0].Content)
}

func TestSubscribeToOutputPatternAndUnsubscribe(t *testing.T) {
	k, _ := newKernel(t)
	ctx := context.Background()

	results := k.CreateSessions(ctx, []SessionConfig{{Name: "s1"}})
	sessionID := results[0].Session.SessionID

	id, err := k.SubscribeToOutputPattern(types.Target{SessionID: sessionID}, "READY", "test.ready")
	require.NoError(t, err)

	matched := make(chan struct{}, 1)
	k.bus.Subscribe("test.ready", func(ev event.Event) { matched <- struct{}{} })

	fake := k.driver.(*driver.Fake)
	fake.PushOutput(sessionID, "server is READY now")
	require.NoError(t, k.monitor.Start(sessionID, 0))

	select {
	case <-matched:
	case <-time.After(2 * time.Second):
		t.Fatal("pattern subscription never matched")
	}

	require.NoError(t, k.Unsubscribe(id))
	assert.Error(t, k.Unsubscribe(id))
}
