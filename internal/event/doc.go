/*
Package event provides the orchestration kernel's event bus.

Components publish events on a topic (e.g. "session.output.<id>",
"lock.acquired", "plan.step.done") with a priority. Subscribers register
against an exact topic or a "prefix.*" pattern and are delivered events on
a dedicated worker goroutine, ordered by priority within that worker's own
queue (critical, then high, then normal, then low; FIFO within a class).

# Bounded delivery

Each subscription holds a bounded queue (default 256 events). When full,
the lowest-priority non-empty class is evicted from its oldest entry to
make room, and a bus.dropped event is published describing the eviction.
A slow subscriber only ever stalls its own queue, never another
subscriber's delivery.

# History

The bus retains a bounded ring (default 256 events) per exact topic,
queryable with History, independent of whether anyone is currently
subscribed.

# Output triggers

OnOutputPattern wraps Subscribe for the common case of watching a
session's output topic for a regex match, publishing pattern.matched
when one is found.

# Transport

Publish hands events to watermill's in-process gochannel, the same way
the rest of this codebase wires watermill, and a single fan-out goroutine
reads them back off the transport to walk subscriptions and enqueue
matches. This keeps watermill as the pub/sub backbone while the
kernel-specific priority and history semantics sit in this package rather
than in the transport.
*/
package event
