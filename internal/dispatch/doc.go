// Package dispatch implements the Message Dispatcher: parallel write/read
// fan-out across resolved targets, cascade resolution by agent
// specificity, and deduplication of repeated writes.
//
// Dispatcher operations never raise for per-target failures; a failed
// resolution, a lock conflict, or a suppressed duplicate is reported as a
// result entry alongside the successes of its peers. Parallel fan-out is
// bounded by a golang.org/x/sync/semaphore.Weighted and driven with
// golang.org/x/sync/errgroup, mirroring the teacher's batch tool.
package dispatch
