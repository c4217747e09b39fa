// Package notify implements the Notification Ring Buffer: a bounded
// global deque plus a bounded per-agent deque of Notification records.
package notify

import (
	"fmt"
	"sync"

	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

const defaultCapacity = 512

// Buffer is the Notification Ring Buffer.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	global   []types.Notification
	byAgent  map[string][]types.Notification
}

// New creates a Buffer with the given per-deque capacity (default 512 if
// capacity <= 0).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{capacity: capacity, byAgent: make(map[string][]types.Notification)}
}

// Add appends n to the global deque and its agent's deque, evicting the
// oldest entry from each if at capacity.
func (b *Buffer) Add(n types.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.global = push(b.global, n, b.capacity)
	if n.Agent != "" {
		b.byAgent[n.Agent] = push(b.byAgent[n.Agent], n, b.capacity)
	}
}

func push(deque []types.Notification, n types.Notification, capacity int) []types.Notification {
	deque = append(deque, n)
	if len(deque) > capacity {
		deque = deque[len(deque)-capacity:]
	}
	return deque
}

// Get returns a snapshot of notifications matching level (if non-empty)
// and agent (if non-empty), most recent last, capped at limit (limit <= 0
// means unbounded).
func (b *Buffer) Get(level types.NotificationLevel, agent string, limit int) []types.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	var source []types.Notification
	if agent != "" {
		source = b.byAgent[agent]
	} else {
		source = b.global
	}

	var out []types.Notification
	for _, n := range source {
		if level != "" && n.Level != level {
			continue
		}
		out = append(out, n)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]types.Notification(nil), out...)
}

// LatestPerAgent returns the single most recent notification for every
// agent that has one.
func (b *Buffer) LatestPerAgent() map[string]types.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]types.Notification, len(b.byAgent))
	for agent, deque := range b.byAgent {
		if len(deque) == 0 {
			continue
		}
		out[agent] = deque[len(deque)-1]
	}
	return out
}

// Clear empties the deque for agent, or every deque if agent is "".
func (b *Buffer) Clear(agent string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if agent == "" {
		b.global = nil
		b.byAgent = make(map[string][]types.Notification)
		return
	}
	delete(b.byAgent, agent)
	filtered := b.global[:0:0]
	for _, n := range b.global {
		if n.Agent != agent {
			filtered = append(filtered, n)
		}
	}
	b.global = filtered
}

// FormatLine renders one human-readable line for a notification, e.g.
// "[warning] agent-a: disk almost full". Pure function, no locking.
func FormatLine(n types.Notification) string {
	agent := n.Agent
	if agent == "" {
		agent = "-"
	}
	return fmt.Sprintf("[%s] %s: %s", n.Level, agent, n.Summary)
}
