// Package monitor implements the Output Monitor: a per-session polling
// loop that reads a session's current screen through the TerminalDriver,
// diffs it against the previous snapshot, and publishes the appended text
// (plus an overflow flag) as a session.output.<session_id> event. Pattern
// triggers, feedback hooks, and notification rules all consume these
// events; the poll interval is the kernel's primary backpressure knob on
// output volume.
package monitor
