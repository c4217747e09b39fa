package facade

import (
	"context"
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/internal/logging"
	"github.com/opencode-ai/iterm-orchestrator/internal/persist"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// GetNotifications implements get_notifications.
func (k *Kernel) GetNotifications(agent string, level types.NotificationLevel, limit int) []types.Notification {
	return k.notify.Get(level, agent, limit)
}

// GetAgentStatusSummary implements get_agent_status_summary.
func (k *Kernel) GetAgentStatusSummary() map[string]types.Notification {
	return k.notify.LatestPerAgent()
}

// Notify implements notify. The notification is persisted before it is
// published so a restart replays it into the ring buffer; a persistence
// failure surfaces via logging but never blocks delivery to subscribers.
func (k *Kernel) Notify(agent string, level types.NotificationLevel, summary, noteContext, actionHint string) types.Notification {
	n := types.Notification{
		Agent:      agent,
		Level:      level,
		Summary:    summary,
		Context:    noteContext,
		ActionHint: actionHint,
		CreatedAt:  k.clk.Now(),
	}
	if err := k.log.Append(persist.KindNotifications, n); err != nil {
		logging.Error().Err(err).Msg("facade: notification persistence degraded")
	}
	k.notify.Add(n)
	k.bus.Publish(event.TopicNotificationAdded, n, event.Normal)
	return n
}

// WaitForAgentResult is the outcome of wait_for_agent.
type WaitForAgentResult struct {
	Notification types.Notification
	Output       []string
	TimedOut     bool
}

// WaitForAgent implements wait_for_agent: blocks until agent publishes a
// notification (via Notify) or waitUpToS elapses. A timeout is not an
// error: the result has TimedOut set, and when summaryOnTimeout is set it
// also carries a synthetic notification with that summary.
func (k *Kernel) WaitForAgent(ctx context.Context, agent string, waitUpToS int, returnOutput bool, summaryOnTimeout string) (WaitForAgentResult, error) {
	resultCh := make(chan types.Notification, 1)
	subID := k.bus.Subscribe(event.TopicNotificationAdded, func(ev event.Event) {
		n, ok := ev.Payload.(types.Notification)
		if !ok || n.Agent != agent {
			return
		}
		select {
		case resultCh <- n:
		default:
		}
	})
	defer k.bus.Unsubscribe(subID)

	timeout := time.Duration(waitUpToS) * time.Second
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case n := <-resultCh:
		return k.finishWait(ctx, agent, n, returnOutput, false)
	case <-timer.C:
		if summaryOnTimeout == "" {
			return WaitForAgentResult{TimedOut: true}, nil
		}
		n := types.Notification{Agent: agent, Level: types.LevelInfo, Summary: summaryOnTimeout, CreatedAt: k.clk.Now()}
		return k.finishWait(ctx, agent, n, returnOutput, true)
	case <-ctx.Done():
		return WaitForAgentResult{}, ctx.Err()
	}
}

func (k *Kernel) finishWait(ctx context.Context, agent string, n types.Notification, returnOutput, timedOut bool) (WaitForAgentResult, error) {
	result := WaitForAgentResult{Notification: n, TimedOut: timedOut}
	if !returnOutput {
		return result, nil
	}
	sessionID, ok := k.agents.ResolveAgentSession(agent)
	if !ok {
		return result, nil
	}
	res, err := k.driver.ReadScreen(ctx, sessionID, k.cfg.DefaultMaxLines)
	if err != nil {
		return result, nil
	}
	result.Output = res.Lines
	return result, nil
}
