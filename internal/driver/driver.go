// Package driver defines the TerminalDriver capability the kernel consumes.
// The terminal emulator itself — split panes, writing bytes, reading screen
// contents, colors/badges, control characters — is an external collaborator
// and out of scope for this module; the kernel only depends on this narrow
// interface. The driver is expected to be thread-safe; the kernel never
// locks around a driver call.
package driver

import "context"

// Colors is the optional RGB triple set for ModifySessions-style operations.
type Colors struct {
	Background *RGB
	Tab        *RGB
	Cursor     *RGB
}

// RGB is a single color with 0-255 channel values.
type RGB struct {
	Red, Green, Blue int
}

// ReadResult is what the driver returns for a screen read.
type ReadResult struct {
	Lines      []string
	Overflowed bool
}

// TerminalDriver is the capability the kernel invokes to manipulate actual
// terminal panes. No kernel logic depends on a concrete implementation.
type TerminalDriver interface {
	Create(ctx context.Context, name, profile string) (sessionHandle string, err error)
	Split(ctx context.Context, sessionHandle string, vertical, before bool, profile string) (newHandle string, err error)
	Write(ctx context.Context, sessionHandle string, content string, executeEnter, useEncoding bool) error
	SendControl(ctx context.Context, sessionHandle string, b byte) error
	ReadScreen(ctx context.Context, sessionHandle string, maxLines int) (ReadResult, error)
	SetColors(ctx context.Context, sessionHandle string, colors Colors) error
	SetBadge(ctx context.Context, sessionHandle string, text string) error
	Focus(ctx context.Context, sessionHandle string) error
	Close(ctx context.Context, sessionHandle string) error
	OnTerminated(sessionHandle string, callback func())
}
