// Package lockmgr implements the Lock Manager: per-session exclusive
// write locks with optional TTL expiry and a request-access log.
package lockmgr

import (
	"sync"
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// AccessRequest records one request_access call for later inspection.
type AccessRequest struct {
	SessionID      string
	RequesterAgent string
	OwnerAgent     string
	RequestedAt    time.Time
}

// Manager is the Lock Manager. A single mutex serializes all mutations;
// expired locks are treated as absent without an explicit sweep.
type Manager struct {
	mu    sync.Mutex
	clk   clock.Clock
	locks map[string]*types.Lock

	requests []AccessRequest
}

// New creates an empty Lock Manager.
func New(clk clock.Clock) *Manager {
	return &Manager{clk: clk, locks: make(map[string]*types.Lock)}
}

// Acquire takes the lock on session for owner, failing if another agent
// already holds a non-expired lock on it.
func (m *Manager) Acquire(sessionID, owner, reason string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	if existing, ok := m.locks[sessionID]; ok && !existing.Expired(now) {
		if existing.Owner != owner {
			return &kernelerr.LockedBy{Owner: existing.Owner}
		}
	}

	lock := &types.Lock{
		SessionID:  sessionID,
		Owner:      owner,
		Reason:     reason,
		AcquiredAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		lock.ExpiresAt = &exp
	}
	m.locks[sessionID] = lock
	return nil
}

// Release drops the lock on session, failing NotOwner if owner isn't the
// current holder. Releasing an already-expired or absent lock succeeds.
func (m *Manager) Release(sessionID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[sessionID]
	if !ok || existing.Expired(m.clk.Now()) {
		delete(m.locks, sessionID)
		return nil
	}
	if existing.Owner != owner {
		return &kernelerr.NotOwner{Owner: existing.Owner}
	}
	delete(m.locks, sessionID)
	return nil
}

// Owner returns the current non-expired owner of session, or "" if none.
func (m *Manager) Owner(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[sessionID]
	if !ok || lock.Expired(m.clk.Now()) {
		return ""
	}
	return lock.Owner
}

// CheckWrite returns a LockedBy error if session is locked by an agent
// other than requester. Reads never consult this.
func (m *Manager) CheckWrite(sessionID, requester string) error {
	owner := m.Owner(sessionID)
	if owner != "" && owner != requester {
		return &kernelerr.LockedBy{Owner: owner}
	}
	return nil
}

// RequestAccess records a request_access call. Kernel policy denies every
// request by default; integrators wanting a different policy override
// this at the façade layer.
func (m *Manager) RequestAccess(sessionID, requester, owner string) (granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, AccessRequest{
		SessionID:      sessionID,
		RequesterAgent: requester,
		OwnerAgent:     owner,
		RequestedAt:    m.clk.Now(),
	})
	return false
}

// Requests returns a snapshot of every recorded access request.
func (m *Manager) Requests() []AccessRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AccessRequest(nil), m.requests...)
}

// Locks returns a snapshot of every currently held, non-expired lock.
// Expired locks are dropped from the snapshot (and from the underlying map)
// as they're encountered.
func (m *Manager) Locks() []*types.Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	out := make([]*types.Lock, 0, len(m.locks))
	for sessionID, lock := range m.locks {
		if lock.Expired(now) {
			delete(m.locks, sessionID)
			continue
		}
		copied := *lock
		out = append(out, &copied)
	}
	return out
}
