package driver

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory TerminalDriver used by kernel tests. It is not part
// of the terminal emulator (out of scope); it only stands in for one.
type Fake struct {
	mu         sync.Mutex
	seq        int
	screens    map[string][]string
	overflow   map[string]bool
	writes     []FakeWrite
	terminated map[string][]func()
	closed     map[string]bool
}

// FakeWrite records one call to Write, for assertions in tests.
type FakeWrite struct {
	SessionHandle string
	Content       string
	ExecuteEnter  bool
	UseEncoding   bool
}

// NewFake creates an empty Fake driver.
func NewFake() *Fake {
	return &Fake{
		screens:    make(map[string][]string),
		overflow:   make(map[string]bool),
		terminated: make(map[string][]func()),
		closed:     make(map[string]bool),
	}
}

func (f *Fake) Create(ctx context.Context, name, profile string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	handle := fmt.Sprintf("pane-%d", f.seq)
	f.screens[handle] = nil
	return handle, nil
}

func (f *Fake) Split(ctx context.Context, sessionHandle string, vertical, before bool, profile string) (string, error) {
	return f.Create(ctx, sessionHandle+"-split", profile)
}

func (f *Fake) Write(ctx context.Context, sessionHandle, content string, executeEnter, useEncoding bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, FakeWrite{sessionHandle, content, executeEnter, useEncoding})
	f.screens[sessionHandle] = append(f.screens[sessionHandle], content)
	return nil
}

func (f *Fake) SendControl(ctx context.Context, sessionHandle string, b byte) error { return nil }

func (f *Fake) ReadScreen(ctx context.Context, sessionHandle string, maxLines int) (ReadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := f.screens[sessionHandle]
	overflow := f.overflow[sessionHandle]
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
		overflow = true
	}
	out := append([]string(nil), lines...)
	return ReadResult{Lines: out, Overflowed: overflow}, nil
}

func (f *Fake) SetColors(ctx context.Context, sessionHandle string, colors Colors) error { return nil }
func (f *Fake) SetBadge(ctx context.Context, sessionHandle string, text string) error    { return nil }
func (f *Fake) Focus(ctx context.Context, sessionHandle string) error                   { return nil }

func (f *Fake) Close(ctx context.Context, sessionHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[sessionHandle] = true
	for _, cb := range f.terminated[sessionHandle] {
		cb()
	}
	return nil
}

func (f *Fake) OnTerminated(sessionHandle string, callback func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated[sessionHandle] = append(f.terminated[sessionHandle], callback)
}

// PushOutput appends lines to a session's screen, as if the program running
// inside it produced them, and is used by Output Monitor tests to simulate
// deltas.
func (f *Fake) PushOutput(sessionHandle string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screens[sessionHandle] = append(f.screens[sessionHandle], lines...)
}

// SetOverflow marks a session as having dropped scrollback lines.
func (f *Fake) SetOverflow(sessionHandle string, overflow bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overflow[sessionHandle] = overflow
}

// Writes returns a snapshot of all recorded writes, in call order.
func (f *Fake) Writes() []FakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeWrite(nil), f.writes...)
}
