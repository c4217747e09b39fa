package facade

import (
	"regexp"
	"strconv"

	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// SubscribeToOutputPattern implements subscribe_to_output_pattern. target
// may resolve to several sessions; every matching one is watched under a
// single façade-level subscription id, torn down together by Unsubscribe.
func (k *Kernel) SubscribeToOutputPattern(tgt types.Target, pattern, eventName string) (uint64, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, &kernelerr.InvalidArgument{Field: "regex", Reason: err.Error()}
	}
	sessionIDs, err := k.resolver.Resolve(tgt)
	if err != nil {
		return 0, err
	}

	busIDs := make([]uint64, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionID := sessionID
		busID := k.bus.OnOutputPattern(sessionID, re, func(matched string, ev event.Event) {
			k.bus.Publish(eventName, SubscriptionMatchPayload{
				SessionID: sessionID,
				Pattern:   pattern,
				Matched:   matched,
			}, event.Normal)
		})
		busIDs = append(busIDs, busID)
	}

	return k.subs.add(busIDs), nil
}

// SubscriptionMatchPayload is published on the caller-chosen event_name
// topic when a subscribed pattern matches.
type SubscriptionMatchPayload struct {
	SessionID string
	Pattern   string
	Matched   string
}

// Unsubscribe implements unsubscribe.
func (k *Kernel) Unsubscribe(id uint64) error {
	busIDs, ok := k.subs.take(id)
	if !ok {
		return &kernelerr.NotFound{What: "subscription", Key: strconv.FormatUint(id, 10)}
	}
	for _, busID := range busIDs {
		k.bus.Unsubscribe(busID)
	}
	return nil
}
