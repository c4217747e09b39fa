package facade

import "sync"

// subscriptionTable maps a façade-level subscription id, handed back to the
// caller of subscribe_to_output_pattern, to the underlying bus subscription
// ids it fans out to. A single Target can resolve to many sessions, each
// needing its own event.Bus.OnOutputPattern registration; unsubscribe must
// tear down all of them together.
type subscriptionTable struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64][]uint64
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{subs: make(map[uint64][]uint64)}
}

// add records a new façade subscription backed by busIDs and returns its id.
func (t *subscriptionTable) add(busIDs []uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	t.subs[id] = busIDs
	return id
}

// take removes and returns the bus subscription ids for id, or (nil, false)
// if id is unknown.
func (t *subscriptionTable) take(id uint64) ([]uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	busIDs, ok := t.subs[id]
	if !ok {
		return nil, false
	}
	delete(t.subs, id)
	return busIDs, true
}
