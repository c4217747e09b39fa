package facade

import (
	"context"
	"regexp"

	"github.com/opencode-ai/iterm-orchestrator/internal/dispatch"
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// WriteMessage is one entry of write_to_sessions's messages list.
type WriteMessage struct {
	Content      string
	Targets      []types.Target
	ExecuteEnter bool `json:"execute_enter"`
	UseEncoding  bool `json:"use_encoding"`
}

// WriteToSessions implements write_to_sessions. send_conditions, when
// given, gates each message's delivery to a target on any output delta
// still held in the bus's history for that target's session matching the
// paired regex; a target with no such match is dropped from that message
// silently rather than erroring, since the condition not holding is the
// expected steady state. A target that does not resolve is kept, so the
// dispatcher reports its resolution error.
func (k *Kernel) WriteToSessions(ctx context.Context, messages []WriteMessage, parallel, skipDuplicates bool, sendConditions map[string]types.Target, caller string) (dispatch.WriteResult, error) {
	inputs := make([]dispatch.WriteInput, len(messages))
	for i, m := range messages {
		targets := m.Targets
		if sendConditions != nil {
			targets = k.filterBySendCondition(targets, sendConditions)
		}
		inputs[i] = dispatch.WriteInput{
			Content:      m.Content,
			Targets:      targets,
			ExecuteEnter: m.ExecuteEnter,
			UseEncoding:  m.UseEncoding,
		}
	}
	return k.dispatch.Write(ctx, inputs, parallel, skipDuplicates, caller)
}

// filterBySendCondition keeps only the targets among candidates whose
// resolved sessions have an output delta in the bus history matching one
// of the send_conditions regexes, plus any candidate that fails to
// resolve.
func (k *Kernel) filterBySendCondition(candidates []types.Target, sendConditions map[string]types.Target) []types.Target {
	allowed := make(map[string]bool)
	for pattern, cond := range sendConditions {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		sessionIDs, err := k.resolver.Resolve(cond)
		if err != nil {
			continue
		}
		for _, sessionID := range sessionIDs {
			if k.recentOutputMatches(sessionID, re) {
				allowed[sessionID] = true
			}
		}
	}

	var out []types.Target
	for _, t := range candidates {
		sessionIDs, err := k.resolver.Resolve(t)
		if err != nil {
			out = append(out, t)
			continue
		}
		for _, sessionID := range sessionIDs {
			if allowed[sessionID] {
				out = append(out, types.Target{SessionID: sessionID})
			}
		}
	}
	return out
}

func (k *Kernel) recentOutputMatches(sessionID string, re *regexp.Regexp) bool {
	for _, ev := range k.bus.History(event.SessionOutputTopic(sessionID), 0) {
		delta, ok := ev.Payload.(event.OutputDelta)
		if ok && re.MatchString(delta.Text) {
			return true
		}
	}
	return false
}

// ReadSessions implements read_sessions.
func (k *Kernel) ReadSessions(ctx context.Context, targets []types.Target, parallel bool, filterPattern *regexp.Regexp, maxLines int) (dispatch.ReadResult, error) {
	return k.dispatch.Read(ctx, targets, parallel, filterPattern, maxLines)
}

// SendCascadeMessage implements send_cascade_message.
func (k *Kernel) SendCascadeMessage(ctx context.Context, broadcast string, teams, agents map[string]string, skipDuplicates bool, caller string) (dispatch.CascadeResult, error) {
	return k.dispatch.SendCascade(ctx, k.agents, dispatch.CascadeInput{
		Broadcast:      broadcast,
		Teams:          teams,
		Agents:         agents,
		SkipDuplicates: skipDuplicates,
	}, caller)
}

// controlCodes maps a-z to its control byte, e.g. 'c' -> 0x03.
var controlCodes = buildControlCodes()

func buildControlCodes() map[byte]byte {
	m := make(map[byte]byte, 26)
	for c := byte('a'); c <= 'z'; c++ {
		m[c] = c - 'a' + 1
	}
	return m
}

// SendControlCharacter implements send_control_character.
func (k *Kernel) SendControlCharacter(ctx context.Context, tgt types.Target, char byte) error {
	code, ok := controlCodes[char]
	if !ok {
		return &kernelerr.InvalidArgument{Field: "char", Reason: "must be a single letter a-z"}
	}
	sessionIDs, err := k.resolver.Resolve(tgt)
	if err != nil {
		return err
	}
	for _, sessionID := range sessionIDs {
		if err := k.driver.SendControl(ctx, sessionID, code); err != nil {
			return &kernelerr.DriverError{Kind: "send_control", Err: err}
		}
	}
	return nil
}

// specialKeySequences maps send_special_key's key enum to its canonical
// byte sequence.
var specialKeySequences = map[string]string{
	"enter":     "\r",
	"tab":       "\t",
	"escape":    "\x1b",
	"up":        "\x1b[A",
	"down":      "\x1b[B",
	"right":     "\x1b[C",
	"left":      "\x1b[D",
	"backspace": "\x7f",
	"home":      "\x1b[H",
	"end":       "\x1b[F",
}

// SendSpecialKey implements send_special_key.
func (k *Kernel) SendSpecialKey(ctx context.Context, tgt types.Target, key string) error {
	seq, ok := specialKeySequences[key]
	if !ok {
		return &kernelerr.InvalidArgument{Field: "key", Reason: "unrecognized special key"}
	}
	sessionIDs, err := k.resolver.Resolve(tgt)
	if err != nil {
		return err
	}
	for _, sessionID := range sessionIDs {
		if err := k.driver.Write(ctx, sessionID, seq, false, false); err != nil {
			return &kernelerr.DriverError{Kind: "send_special_key", Err: err}
		}
	}
	return nil
}
