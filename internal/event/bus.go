// Package event provides the orchestration kernel's pub/sub event bus:
// topic subscriptions (exact or "prefix.*" pattern), priority-ordered
// per-subscriber delivery, bounded per-topic history, and regex
// output-pattern triggers. It keeps watermill's gochannel as the
// transport backbone the way the teacher's event bus does, and layers
// the priority queue, history ring, and trigger machinery on top of it.
package event

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/opencode-ai/iterm-orchestrator/internal/logging"
)

// Priority orders delivery within a single subscriber's own queue.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

// rank returns the dequeue order: higher rank drains first.
func (p Priority) rank() int {
	switch p {
	case Critical:
		return 3
	case High:
		return 2
	case Normal:
		return 1
	default:
		return 0
	}
}

// Event is one published occurrence on the bus.
type Event struct {
	Topic      string
	Payload    any
	Priority   Priority
	EmittedAt  time.Time
	SequenceNo uint64
}

// Subscriber receives delivered events, one at a time, on its own worker.
type Subscriber func(Event)

const (
	defaultHistorySize     = 256
	defaultSubscriberCap   = 256
	internalWatermillTopic = "kernel.events"
)

// Bus is the kernel's event bus.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscription
	hist map[string]*ring

	pubsub  *gochannel.GoChannel
	nextID  uint64
	nextSeq uint64

	events sync.Map // message UUID -> Event, bridges Go values through watermill

	closeOnce sync.Once
}

// New creates a running event bus. Callers must Close it when done.
func New() *Bus {
	b := &Bus{
		subs: make(map[uint64]*subscription),
		hist: make(map[string]*ring),
		// Publish waits until the fan-out goroutine has taken the message,
		// so events reach dispatch in publish order.
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256, Persistent: false, BlockPublishUntilSubscriberAck: true},
			watermill.NopLogger{},
		),
	}
	b.run()
	return b
}

func (b *Bus) run() {
	msgs, err := b.pubsub.Subscribe(context.Background(), internalWatermillTopic)
	if err != nil {
		logging.Error().Err(err).Msg("event: failed to subscribe transport topic")
		return
	}
	go func() {
		for msg := range msgs {
			v, ok := b.events.LoadAndDelete(msg.UUID)
			msg.Ack()
			if !ok {
				continue
			}
			b.dispatch(v.(Event))
		}
	}()
}

// Publish assigns a sequence number, records history, and fans the event
// out to every subscription whose pattern matches its topic.
func (b *Bus) Publish(topic string, payload any, priority Priority) Event {
	seq := atomic.AddUint64(&b.nextSeq, 1)
	ev := Event{Topic: topic, Payload: payload, Priority: priority, EmittedAt: time.Now(), SequenceNo: seq}

	b.mu.Lock()
	b.recordHistory(ev)
	b.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), nil)
	b.events.Store(msg.UUID, ev)
	if err := b.pubsub.Publish(internalWatermillTopic, msg); err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("event: publish failed")
	}
	return ev
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	var targets []*subscription
	for _, s := range b.subs {
		if matchTopic(s.pattern, ev.Topic) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if dropped, wasFull := s.enqueue(ev); wasFull {
			b.emitDropped(s.id, s.pattern, dropped)
		}
	}
}

// emitDropped publishes a bus.dropped record describing an overflow
// eviction. It records history and enqueues the record directly on every
// matching subscription instead of going through the transport; an
// eviction caused by that enqueue is not reported again, so overflow
// never recurses.
func (b *Bus) emitDropped(subID uint64, pattern string, dropped Event) {
	seq := atomic.AddUint64(&b.nextSeq, 1)
	ev := Event{
		Topic:      "bus.dropped",
		Priority:   Critical,
		EmittedAt:  time.Now(),
		SequenceNo: seq,
		Payload: DroppedEvent{
			SubscriptionID: subID,
			Pattern:        pattern,
			DroppedTopic:   dropped.Topic,
			DroppedSeq:     dropped.SequenceNo,
		},
	}
	b.mu.Lock()
	b.recordHistory(ev)
	var targets []*subscription
	for _, s := range b.subs {
		if matchTopic(s.pattern, ev.Topic) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()
	for _, s := range targets {
		s.enqueue(ev)
	}
	logging.Warn().Uint64("subscription_id", subID).Str("pattern", pattern).
		Str("dropped_topic", dropped.Topic).Msg("event: subscriber queue overflow")
}

// DroppedEvent is the payload of bus.dropped events.
type DroppedEvent struct {
	SubscriptionID uint64
	Pattern        string
	DroppedTopic   string
	DroppedSeq     uint64
}

// recordHistory appends ev to its exact-topic history ring. Caller holds b.mu.
func (b *Bus) recordHistory(ev Event) {
	r, ok := b.hist[ev.Topic]
	if !ok {
		r = newRing(defaultHistorySize)
		b.hist[ev.Topic] = r
	}
	r.push(ev)
}

// History returns up to limit most recent events published on topic,
// oldest first. limit <= 0 returns the full retained ring.
func (b *Bus) History(topic string, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.hist[topic]
	if !ok {
		return nil
	}
	return r.last(limit)
}

// Subscribe registers a handler for an exact topic or a "prefix.*" pattern.
// The handler runs on a dedicated worker goroutine so a slow subscriber
// cannot stall delivery to others.
func (b *Bus) Subscribe(pattern string, handler Subscriber) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	s := newSubscription(id, pattern, handler, defaultSubscriberCap)
	b.subs[id] = s
	return id
}

// Unsubscribe removes a subscription and stops its worker. Events already
// queued for it are discarded.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		s.stop()
	}
}

// OnOutputPattern subscribes to session.output.<sessionID> and, whenever a
// delta's text matches re, publishes pattern.matched and invokes handler
// with the matched substring. Returns the underlying subscription id.
func (b *Bus) OnOutputPattern(sessionID string, re *regexp.Regexp, handler func(matched string, ev Event)) uint64 {
	topic := "session.output." + sessionID
	return b.Subscribe(topic, func(ev Event) {
		delta, ok := ev.Payload.(OutputDelta)
		if !ok {
			return
		}
		match := re.FindString(delta.Text)
		if match == "" {
			return
		}
		b.Publish("pattern.matched", PatternMatch{
			SessionID: sessionID,
			Pattern:   re.String(),
			Matched:   match,
		}, Normal)
		if handler != nil {
			handler(match, ev)
		}
	})
}

// Close stops the bus and every subscription's worker.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		subs := make([]*subscription, 0, len(b.subs))
		for _, s := range b.subs {
			subs = append(subs, s)
		}
		b.subs = make(map[uint64]*subscription)
		b.mu.Unlock()

		for _, s := range subs {
			s.stop()
		}
		_ = b.pubsub.Close()
	})
}

// OutputDelta is the payload of session.output.<id> events.
type OutputDelta struct {
	SessionID string
	Text      string
	Overflow  bool
}

// PatternMatch is the payload of pattern.matched events.
type PatternMatch struct {
	SessionID string
	Pattern   string
	Matched   string
}

// matchTopic reports whether topic satisfies pattern, where pattern is
// either an exact topic or a "prefix.*" wildcard.
func matchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	const suffix = ".*"
	if len(pattern) > len(suffix) && pattern[len(pattern)-len(suffix):] == suffix {
		prefix := pattern[:len(pattern)-len(suffix)]
		return len(topic) >= len(prefix) && topic[:len(prefix)] == prefix
	}
	return false
}
