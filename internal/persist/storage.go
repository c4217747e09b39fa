// Package persist implements the kernel's Persistence Log: an append-only,
// line-delimited record store with atomic-rewrite compaction. Each
// tracked kind (agents, teams, managers, persistent_sessions,
// notifications, feedback) lives in its own file under a base directory;
// each line is one self-contained JSON record. Reads happen once at
// startup via Replay; writes append-and-fsync one record at a time so a
// crash mid-write loses at most the last line.
package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
)

// Kind names one of the fixed record files the kernel maintains.
type Kind string

const (
	KindAgents             Kind = "agents"
	KindTeams              Kind = "teams"
	KindManagers           Kind = "managers"
	KindPersistentSessions Kind = "persistent_sessions"
	KindNotifications      Kind = "notifications"
	KindFeedback           Kind = "feedback"
)

var allKinds = []Kind{KindAgents, KindTeams, KindManagers, KindPersistentSessions, KindNotifications, KindFeedback}

// Log is the Persistence Log. One instance owns every record file under
// baseDir for the process's lifetime.
type Log struct {
	baseDir string

	mu      sync.Mutex // protects handles/locks maps, not per-file contention
	handles map[Kind]*os.File
	locks   map[Kind]*FileLock
}

// Open creates baseDir if needed and opens append handles for every kind.
func Open(baseDir string) (*Log, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, &kernelerr.PersistenceError{Path: baseDir, Kind: "mkdir", Err: err}
	}
	l := &Log{
		baseDir: baseDir,
		handles: make(map[Kind]*os.File),
		locks:   make(map[Kind]*FileLock),
	}
	for _, k := range allKinds {
		f, err := os.OpenFile(l.path(k), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Close()
			return nil, &kernelerr.PersistenceError{Path: l.path(k), Kind: "open", Err: err}
		}
		l.handles[k] = f
		l.locks[k] = NewFileLock(l.path(k))
	}
	return l, nil
}

func (l *Log) path(k Kind) string {
	return filepath.Join(l.baseDir, string(k))
}

// Append marshals record as one JSON line and appends it, fsyncing before
// returning so the write survives a crash. Failure is reported as a
// PersistenceError; callers keep their in-memory mutation regardless.
func (l *Log) Append(kind Kind, record any) error {
	l.mu.Lock()
	f, ok := l.handles[kind]
	l.mu.Unlock()
	if !ok {
		return &kernelerr.PersistenceError{Path: string(kind), Kind: "append", Err: fmt.Errorf("unknown kind")}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return &kernelerr.PersistenceError{Path: l.path(kind), Kind: "marshal", Err: err}
	}
	data = append(data, '\n')

	lock := l.locks[kind]
	if err := lock.Lock(); err != nil {
		return &kernelerr.PersistenceError{Path: l.path(kind), Kind: "flock", Err: err}
	}
	defer lock.Unlock()

	if _, err := f.Write(data); err != nil {
		return &kernelerr.PersistenceError{Path: l.path(kind), Kind: "write", Err: err}
	}
	if err := f.Sync(); err != nil {
		return &kernelerr.PersistenceError{Path: l.path(kind), Kind: "fsync", Err: err}
	}
	return nil
}

// Replay reads every line of kind's file in order and invokes fn with the
// raw JSON. Used once at startup to reconstruct in-memory state. A
// truncated final line (partial write before a crash) is skipped.
func (l *Log) Replay(kind Kind, fn func(json.RawMessage) error) error {
	path := l.path(kind)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &kernelerr.PersistenceError{Path: path, Kind: "replay-open", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue // partial line from a crash mid-append
		}
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		if err := fn(raw); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Compact rewrites kind's file to contain exactly the given records, one
// per line, replacing the on-disk log with its logical state. It writes
// to a temp file, fsyncs, and renames over the original under the kind's
// file lock so concurrent Append calls never see a half-written file.
func (l *Log) Compact(kind Kind, records []any) error {
	lock := l.locks[kind]
	if err := lock.Lock(); err != nil {
		return &kernelerr.PersistenceError{Path: l.path(kind), Kind: "flock", Err: err}
	}
	defer lock.Unlock()

	path := l.path(kind)
	tmpPath := path + ".compact.tmp"

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &kernelerr.PersistenceError{Path: path, Kind: "compact-open", Err: err}
	}
	w := bufio.NewWriter(tmp)
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return &kernelerr.PersistenceError{Path: path, Kind: "compact-marshal", Err: err}
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return &kernelerr.PersistenceError{Path: path, Kind: "compact-write", Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &kernelerr.PersistenceError{Path: path, Kind: "compact-flush", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &kernelerr.PersistenceError{Path: path, Kind: "compact-fsync", Err: err}
	}
	tmp.Close()

	l.mu.Lock()
	old := l.handles[kind]
	l.mu.Unlock()

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &kernelerr.PersistenceError{Path: path, Kind: "compact-rename", Err: err}
	}

	// Reopen the append handle against the new inode.
	newHandle, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &kernelerr.PersistenceError{Path: path, Kind: "compact-reopen", Err: err}
	}
	l.mu.Lock()
	l.handles[kind] = newHandle
	l.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Close flushes and closes every open handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for k, f := range l.handles {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(l.handles, k)
	}
	return firstErr
}
