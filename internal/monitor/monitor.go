package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/driver"
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/internal/logging"
)

// Monitor runs one polling loop per watched session, reading its current
// screen through the driver and publishing appended text as
// session.output.<id> events.
type Monitor struct {
	drv      driver.TerminalDriver
	bus      *event.Bus
	interval time.Duration
	maxLines int

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	mu        sync.Mutex
	maxLines  int
	prevLines []string

	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates a Monitor. interval <= 0 falls back to 250ms and
// defaultMaxLines <= 0 to 1000 lines, the same defaults config.Load
// applies; callers normally pass config.Load() output instead.
func New(drv driver.TerminalDriver, bus *event.Bus, interval time.Duration, defaultMaxLines int) *Monitor {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if defaultMaxLines <= 0 {
		defaultMaxLines = 1000
	}
	return &Monitor{
		drv:      drv,
		bus:      bus,
		interval: interval,
		maxLines: defaultMaxLines,
		watches:  make(map[string]*watch),
	}
}

// Start begins polling sessionID at the Monitor's interval. maxLines <= 0
// uses the Monitor's configured default. Starting an already-watched
// session is an InvalidArgument.
func (m *Monitor) Start(sessionID string, maxLines int) error {
	if maxLines <= 0 {
		maxLines = m.maxLines
	}

	m.mu.Lock()
	if _, exists := m.watches[sessionID]; exists {
		m.mu.Unlock()
		return &kernelerr.InvalidArgument{Field: "session", Reason: "already monitored: " + sessionID}
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &watch{maxLines: maxLines, cancel: cancel, stopped: make(chan struct{})}
	m.watches[sessionID] = w
	m.mu.Unlock()

	go m.run(ctx, sessionID, w)
	return nil
}

// Stop ends polling for sessionID and blocks until its current poll (if
// any) has finished, or ctx is done first. Stopping a session that isn't
// watched is a no-op NotFound.
func (m *Monitor) Stop(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	w, ok := m.watches[sessionID]
	if ok {
		delete(m.watches, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return &kernelerr.NotFound{What: "monitor", Key: sessionID}
	}

	w.cancel()
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports whether sessionID currently has a running poll loop.
func (m *Monitor) Active(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[sessionID]
	return ok
}

func (m *Monitor) run(ctx context.Context, sessionID string, w *watch) {
	defer close(w.stopped)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx, sessionID, w)
		}
	}
}

// PollOnce runs a single poll for an already-started session immediately,
// bypassing the ticker. Exposed for tests and for callers that want to
// force a read without waiting out the interval.
func (m *Monitor) PollOnce(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	w, ok := m.watches[sessionID]
	m.mu.Unlock()
	if !ok {
		return &kernelerr.NotFound{What: "monitor", Key: sessionID}
	}
	m.poll(ctx, sessionID, w)
	return nil
}

func (m *Monitor) poll(ctx context.Context, sessionID string, w *watch) {
	w.mu.Lock()
	maxLines := w.maxLines
	prev := w.prevLines
	w.mu.Unlock()

	res, err := m.drv.ReadScreen(ctx, sessionID, maxLines)
	if err != nil {
		logging.Warn().Err(err).Str("session_id", sessionID).Msg("monitor: read screen failed")
		return
	}

	delta, overflow := diffLines(prev, res.Lines, res.Overflowed)

	w.mu.Lock()
	w.prevLines = res.Lines
	w.mu.Unlock()

	if delta == "" && !overflow {
		return
	}
	m.bus.Publish(event.SessionOutputTopic(sessionID), event.OutputDelta{
		SessionID: sessionID,
		Text:      delta,
		Overflow:  overflow,
	}, event.Normal)
}

// diffLines compares the previous and current screen snapshots. When next
// is a simple extension of prev, the delta is the appended lines and
// overflow passes through the driver's own flag. When prev is no longer a
// prefix of next — the driver's scrollback rolled past what was last
// read, or the screen was cleared — the whole of next is reported as the
// delta and overflow is forced true, since the gap can't be reconstructed.
func diffLines(prev, next []string, driverOverflow bool) (string, bool) {
	if len(next) >= len(prev) && linesEqual(next[:len(prev)], prev) {
		appended := next[len(prev):]
		return strings.Join(appended, "\n"), driverOverflow
	}
	return strings.Join(next, "\n"), true
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
