// Package clock provides identifier generation and time sources for the
// kernel: persistent IDs, feedback IDs, and a mockable clock so dedup and
// TTL windows can be made deterministic in tests.
package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Clock is the process-wide time source. Tests inject a fake implementation
// so dedup and lock TTL windows are deterministic.
type Clock interface {
	Now() time.Time
	MonoNow() time.Time
}

// System is the real wall-clock/monotonic Clock backed by time.Now, whose
// return value already carries a monotonic reading on every platform Go
// supports.
type System struct{}

func (System) Now() time.Time     { return time.Now().UTC() }
func (System) MonoNow() time.Time { return time.Now() }

// NewPersistentID returns a new UUID v4 persistent session identifier.
func NewPersistentID() string {
	return uuid.NewString()
}

// NewInstanceID returns a new ULID, used for session handles, message IDs,
// plan-step run IDs, and permission request IDs — anything that needs a
// lexically sortable, time-ordered identifier.
func NewInstanceID() string {
	return ulid.Make().String()
}

// NewFeedbackID returns an identifier of the form fb-YYYYMMDD-<8 lowercase
// hex chars>, keyed off the supplied clock reading.
func NewFeedbackID(now time.Time) string {
	id := ulid.Make()
	hex := strings.ToLower(fmt.Sprintf("%x", id.Entropy()))
	if len(hex) > 8 {
		hex = hex[:8]
	}
	for len(hex) < 8 {
		hex += "0"
	}
	return fmt.Sprintf("fb-%s-%s", now.Format("20060102"), hex)
}

// Fake is a deterministic Clock for tests. Advance moves both readings
// forward; NewFake sets the starting instant (the zero value starts at
// time.Time{}, January 1 of year 1, UTC).
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a Fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) MonoNow() time.Time {
	return f.Now()
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to an exact instant.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
