// Package planexec implements the Plan Executor: a DAG scheduler that
// runs a Manager's Plan across its workers, retrying failed steps with
// exponential backoff and respecting stop_on_failure cancellation. Every
// step in the ready set is dispatched at once, bounded by the executor's
// concurrency cap; parallel_group does not affect scheduling.
//
// Validation and graph-shape checks happen before any step runs; once
// running, step state transitions (pending -> running ->
// succeeded|failed|skipped) are published on the Event Bus so other
// components (notifications, feedback hooks) can observe plan progress
// without polling the executor.
package planexec
