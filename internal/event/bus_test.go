package event

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met before deadline")
}

func TestBus_SubscribeExactTopic(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	var got []Event
	bus.Subscribe("lock.acquired", func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	bus.Publish("lock.acquired", "session-1", Normal)
	bus.Publish("lock.released", "session-1", Normal)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	assert.Equal(t, "lock.acquired", got[0].Topic)
}

func TestBus_SubscribePatternPrefix(t *testing.T) {
	bus := New()
	defer bus.Close()

	var mu sync.Mutex
	var topics []string
	bus.Subscribe("plan.*", func(e Event) {
		mu.Lock()
		topics = append(topics, e.Topic)
		mu.Unlock()
	})

	bus.Publish("plan.step.started", nil, Normal)
	bus.Publish("plan.completed", nil, Normal)
	bus.Publish("lock.acquired", nil, Normal)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(topics) == 2
	})
}

func TestBus_PriorityDrainsHighFirst(t *testing.T) {
	bus := New()
	defer bus.Close()

	block := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string

	first := true
	bus.Subscribe("queue.test", func(e Event) {
		mu.Lock()
		order = append(order, e.Payload.(string))
		mu.Unlock()
		if first {
			first = false
			close(block)
			<-release
		}
	})

	bus.Publish("queue.test", "blocker", Normal)
	<-block // blocker is being handled, rest pile up in the queue

	bus.Publish("queue.test", "low", Low)
	bus.Publish("queue.test", "critical", Critical)
	bus.Publish("queue.test", "high", High)
	time.Sleep(20 * time.Millisecond)
	close(release)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	})
	assert.Equal(t, []string{"blocker", "critical", "high", "low"}, order)
}

func TestBus_OverflowDropsOldestLowestPriority(t *testing.T) {
	bus := New()
	defer bus.Close()

	block := make(chan struct{})
	release := make(chan struct{})
	first := true
	var mu sync.Mutex
	var delivered []string

	id := bus.Subscribe("overflow.test", func(e Event) {
		if first {
			first = false
			close(block)
			<-release
		}
		mu.Lock()
		delivered = append(delivered, e.Payload.(string))
		mu.Unlock()
	})
	_ = id

	var dropped []Event
	bus.Subscribe("bus.dropped", func(e Event) {
		mu.Lock()
		dropped = append(dropped, e)
		mu.Unlock()
	})

	bus.Publish("overflow.test", "blocker", Normal)
	<-block

	for i := 0; i < defaultSubscriberCap+5; i++ {
		bus.Publish("overflow.test", "filler", Low)
	}
	close(release)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dropped) > 0
	})
}

func TestBus_History(t *testing.T) {
	bus := New()
	defer bus.Close()

	for i := 0; i < 5; i++ {
		bus.Publish("hist.test", i, Normal)
	}

	waitFor(t, func() bool { return len(bus.History("hist.test", 0)) == 5 })

	last2 := bus.History("hist.test", 2)
	require.Len(t, last2, 2)
	assert.Equal(t, 3, last2[0].Payload)
	assert.Equal(t, 4, last2[1].Payload)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	var count int
	var mu sync.Mutex
	id := bus.Subscribe("unsub.test", func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	bus.Publish("unsub.test", nil, Normal)
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return count == 1 })

	bus.Unsubscribe(id)
	bus.Publish("unsub.test", nil, Normal)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

func TestBus_OnOutputPatternMatches(t *testing.T) {
	bus := New()
	defer bus.Close()

	re := regexp.MustCompile(`error:`)
	var matched string
	var mu sync.Mutex
	done := make(chan struct{})

	bus.OnOutputPattern("sess-1", re, func(m string, ev Event) {
		mu.Lock()
		matched = m
		mu.Unlock()
		close(done)
	})

	bus.Publish(SessionOutputTopic("sess-1"), OutputDelta{SessionID: "sess-1", Text: "build ok"}, Normal)
	bus.Publish(SessionOutputTopic("sess-1"), OutputDelta{SessionID: "sess-1", Text: "error: failed"}, Normal)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}
	mu.Lock()
	assert.Equal(t, "error:", matched)
	mu.Unlock()
}
