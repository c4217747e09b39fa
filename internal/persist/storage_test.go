package persist

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type testRecord struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestLog_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(KindAgents, testRecord{ID: "a1", Value: 1}))
	require.NoError(t, l.Append(KindAgents, testRecord{ID: "a2", Value: 2}))

	var got []testRecord
	err = l.Replay(KindAgents, func(raw json.RawMessage) error {
		var r testRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a1", got[0].ID)
	require.Equal(t, "a2", got[1].ID)
}

func TestLog_ReplayMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()

	var count int
	err = l.Replay(KindFeedback, func(json.RawMessage) error { count++; return nil })
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestLog_CompactRewritesToLogicalState(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(KindTeams, testRecord{ID: "t1", Value: 1}))
	require.NoError(t, l.Append(KindTeams, testRecord{ID: "t1", Value: 2}))
	require.NoError(t, l.Append(KindTeams, testRecord{ID: "t2", Value: 3}))

	require.NoError(t, l.Compact(KindTeams, []any{testRecord{ID: "t1", Value: 2}, testRecord{ID: "t2", Value: 3}}))

	var got []testRecord
	err = l.Replay(KindTeams, func(raw json.RawMessage) error {
		var r testRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Append after compaction must still land in the new file.
	require.NoError(t, l.Append(KindTeams, testRecord{ID: "t3", Value: 4}))
	got = nil
	err = l.Replay(KindTeams, func(raw json.RawMessage) error {
		var r testRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestLog_AppendUnknownKindErrors(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	defer l.Close()

	err = l.Append(Kind("bogus"), testRecord{ID: "x"})
	require.Error(t, err)
}
