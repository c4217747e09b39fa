package facade

import (
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// LockSession implements lock_session. ttl <= 0 means no expiry.
func (k *Kernel) LockSession(agent, session, reason string, ttl time.Duration) error {
	if err := k.locks.Acquire(session, agent, reason, ttl); err != nil {
		return err
	}
	k.bus.Publish(event.TopicLockAcquired, LockAcquiredPayload{SessionID: session, Owner: agent}, event.Normal)
	return nil
}

// LockAcquiredPayload is published on lock.acquired.
type LockAcquiredPayload struct {
	SessionID string
	Owner     string
}

// UnlockSession implements unlock_session.
func (k *Kernel) UnlockSession(agent, session string) error {
	if err := k.locks.Release(session, agent); err != nil {
		return err
	}
	k.bus.Publish(event.TopicLockReleased, LockReleasedPayload{SessionID: session, Owner: agent}, event.Normal)
	return nil
}

// LockReleasedPayload is published on lock.released.
type LockReleasedPayload struct {
	SessionID string
	Owner     string
}

// RequestSessionAccess implements request_session_access. The Lock
// Manager's policy is deny-by-default; this just records the request.
func (k *Kernel) RequestSessionAccess(requester, session string) bool {
	owner := k.locks.Owner(session)
	return k.locks.RequestAccess(session, requester, owner)
}

// ListLocks implements list_locks.
func (k *Kernel) ListLocks() []*types.Lock {
	return k.locks.Locks()
}
