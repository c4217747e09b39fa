package planexec

import (
	"context"
	"regexp"
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/dispatch"
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// defaultStepTimeout applies when a step sets no explicit timeout.
const defaultStepTimeout = 30 * time.Second

// StepRunner executes one plan step against a chosen worker and returns
// its output, or an error if the step's terminator/validation condition
// was not observed within its timeout.
type StepRunner interface {
	RunStep(ctx context.Context, worker string, step types.PlanStep) (output string, err error)
}

// AgentDirectory is the subset of the Agent/Team Registry the step runner
// needs to find a worker's bound session.
type AgentDirectory interface {
	ResolveAgentSession(agent string) (sessionID string, ok bool)
}

// DispatcherStepRunner runs a step by writing its task to the worker's
// bound session and waiting for output matching the step's validation
// pattern. A step with no validation pattern is considered complete as
// soon as the write is accepted, since this kernel has no general
// prompt-return signal of its own; integrators wanting a stronger
// terminator condition should set validation.
type DispatcherStepRunner struct {
	Dispatcher *dispatch.Dispatcher
	Agents     AgentDirectory
	Bus        *event.Bus
}

// RunStep implements StepRunner.
func (r *DispatcherStepRunner) RunStep(ctx context.Context, worker string, step types.PlanStep) (string, error) {
	sessionID, ok := r.Agents.ResolveAgentSession(worker)
	if !ok || sessionID == "" {
		return "", &kernelerr.ResolutionError{Descriptor: "agent:" + worker, Reason: "worker has no bound session"}
	}

	var validation *regexp.Regexp
	if step.Validation != "" {
		re, err := regexp.Compile(step.Validation)
		if err != nil {
			return "", &kernelerr.InvalidArgument{Field: "validation", Reason: err.Error()}
		}
		validation = re
	}

	var resultCh chan string
	if validation != nil {
		resultCh = make(chan string, 1)
		subID := r.Bus.OnOutputPattern(sessionID, validation, func(matched string, _ event.Event) {
			select {
			case resultCh <- matched:
			default:
			}
		})
		defer r.Bus.Unsubscribe(subID)
	}

	messages := []dispatch.WriteInput{{
		Content:      step.Task,
		Targets:      []types.Target{{SessionID: sessionID}},
		ExecuteEnter: true,
	}}
	result, err := r.Dispatcher.Write(ctx, messages, false, false, "")
	if err != nil {
		return "", err
	}
	if len(result.Entries) > 0 && result.Entries[0].Err != nil {
		return "", result.Entries[0].Err
	}

	if validation == nil {
		return "", nil
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-resultCh:
		return out, nil
	case <-timer.C:
		return "", &kernelerr.Timeout{Operation: "plan step " + step.ID}
	case <-ctx.Done():
		return "", &kernelerr.Cancelled{Operation: "plan step " + step.ID}
	}
}
