package planexec

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// DefaultConcurrency bounds how many steps one Executor runs at once when
// constructed with concurrency <= 0.
const DefaultConcurrency = 8

// Executor is the Plan Executor: a DAG scheduler over a Manager's worker
// pool. A ready step is one whose dependencies have all succeeded; every
// step in the current ready set is dispatched concurrently, bounded by
// the executor's concurrency cap, regardless of parallel_group — grouping
// only labels which steps were intended to co-run, it does not serialize
// across groups (nothing in the spec's testable properties requires
// cross-group ordering).
type Executor struct {
	managers    *ManagerStore
	runner      StepRunner
	bus         *event.Bus
	sem         *semaphore.Weighted
}

// NewExecutor creates an Executor. concurrency <= 0 uses DefaultConcurrency.
func NewExecutor(managers *ManagerStore, runner StepRunner, bus *event.Bus, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Executor{managers: managers, runner: runner, bus: bus, sem: semaphore.NewWeighted(int64(concurrency))}
}

// Run validates and executes plan against managerName's worker pool,
// returning the terminal outcome of every step.
func (e *Executor) Run(ctx context.Context, plan types.Plan, managerName string) (types.PlanResult, error) {
	if err := validatePlan(plan); err != nil {
		return types.PlanResult{}, err
	}

	steps := make(map[string]types.PlanStep, len(plan.Steps))
	for _, s := range plan.Steps {
		steps[s.ID] = s
	}

	var mu sync.Mutex
	state := make(map[string]types.PlanStepState, len(plan.Steps))
	outcomes := make(map[string]types.StepOutcome, len(plan.Steps))
	for id := range steps {
		state[id] = types.StepPending
	}
	stopAll := false

	e.publish(event.TopicPlanStarted, PlanStartedPayload{PlanName: plan.Name})

	for {
		var pendingBefore []string
		mu.Lock()
		for id, st := range state {
			if st == types.StepPending {
				pendingBefore = append(pendingBefore, id)
			}
		}
		mu.Unlock()
		ready := e.computeReadyAndSkip(steps, state, outcomes, &stopAll, &mu)
		for _, id := range pendingBefore {
			if outcomes[id].State == types.StepSkipped {
				e.publish(event.TopicPlanStepDone, PlanStepPayload{PlanName: plan.Name, StepID: id, State: types.StepSkipped})
			}
		}
		if len(ready) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, id := range ready {
			id := id
			step := steps[id]

			mu.Lock()
			state[id] = types.StepRunning
			mu.Unlock()
			e.publish(event.TopicPlanStepStarted, PlanStepPayload{PlanName: plan.Name, StepID: id, State: types.StepRunning})

			if err := e.sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				outcome := types.StepOutcome{StepID: id, State: types.StepFailed, Error: err.Error()}
				state[id] = types.StepFailed
				outcomes[id] = outcome
				mu.Unlock()
				e.publish(event.TopicPlanStepDone, PlanStepPayload{PlanName: plan.Name, StepID: id, State: types.StepFailed})
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer e.sem.Release(1)
				outcome := e.runStep(ctx, managerName, plan, step)

				mu.Lock()
				state[id] = outcome.State
				outcomes[id] = outcome
				if outcome.State == types.StepFailed && plan.StopOnFailure {
					stopAll = true
				}
				mu.Unlock()
				e.publish(event.TopicPlanStepDone, PlanStepPayload{PlanName: plan.Name, StepID: id, State: outcome.State})
			}()
		}
		wg.Wait()
	}

	result := types.PlanResult{PlanName: plan.Name, Steps: outcomes}
	for _, o := range outcomes {
		if o.State == types.StepFailed {
			result.Failed = true
		}
	}
	e.publish(event.TopicPlanCompleted, PlanCompletedPayload{PlanName: plan.Name, Result: result})
	return result, nil
}

// computeReadyAndSkip scans every still-pending step to a fixpoint: a
// step whose dependencies are all terminal becomes ready if they all
// succeeded, or skipped (cascading) if any failed/skipped, or if a prior
// stop_on_failure has set stopAll.
func (e *Executor) computeReadyAndSkip(steps map[string]types.PlanStep, state map[string]types.PlanStepState, outcomes map[string]types.StepOutcome, stopAll *bool, mu *sync.Mutex) []string {
	mu.Lock()
	defer mu.Unlock()

	var ready []string
	for {
		changed := false
		for id, step := range steps {
			if state[id] != types.StepPending {
				continue
			}
			allTerminal := true
			anyNotSucceeded := false
			for _, dep := range step.DependsOn {
				switch state[dep] {
				case types.StepPending, types.StepRunning:
					allTerminal = false
				case types.StepSucceeded:
				default:
					anyNotSucceeded = true
				}
			}
			if !allTerminal {
				continue
			}
			if *stopAll || anyNotSucceeded {
				state[id] = types.StepSkipped
				outcomes[id] = types.StepOutcome{StepID: id, State: types.StepSkipped}
				changed = true
				continue
			}
			ready = append(ready, id)
			changed = true
			// Mark running is applied by the caller; avoid readding this id
			// on the next fixpoint pass by provisionally flagging it here.
			state[id] = types.StepRunning
		}
		if !changed {
			break
		}
	}
	// Steps marked running above were only provisional placeholders to
	// prevent re-selection; revert to pending so the caller's own
	// "running" transition (and its event) is the single source of truth.
	for _, id := range ready {
		state[id] = types.StepPending
	}
	return ready
}

func (e *Executor) runStep(ctx context.Context, managerName string, plan types.Plan, step types.PlanStep) types.StepOutcome {
	started := time.Now()
	outcome := types.StepOutcome{StepID: step.ID, StartedAt: started}

	worker, err := e.managers.SelectWorker(managerName, step)
	if err != nil {
		outcome.State = types.StepFailed
		outcome.Error = err.Error()
		outcome.EndedAt = time.Now()
		return outcome
	}
	defer e.managers.ReleaseWorker(managerName, worker)
	outcome.Worker = worker

	output, attempts, err := e.runWithRetry(ctx, plan, worker, step)
	outcome.Attempts = attempts
	outcome.Output = output
	outcome.EndedAt = time.Now()
	if err != nil {
		outcome.State = types.StepFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.State = types.StepSucceeded
	return outcome
}

// runWithRetry retries step up to step.Retries times with exponential
// backoff. Each attempt that will be retried publishes a failed/running
// pair so subscribers observe the full transition sequence (running,
// failed, running, ..., succeeded) rather than just the terminal state;
// the final outcome is published once by the caller.
func (e *Executor) runWithRetry(ctx context.Context, plan types.Plan, worker string, step types.PlanStep) (output string, attempts int, err error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(step.Retries)), ctx)

	notify := func(_ error, _ time.Duration) {
		e.publish(event.TopicPlanStepDone, PlanStepPayload{PlanName: plan.Name, StepID: step.ID, State: types.StepFailed})
		e.publish(event.TopicPlanStepStarted, PlanStepPayload{PlanName: plan.Name, StepID: step.ID, State: types.StepRunning})
	}

	err = backoff.RetryNotify(func() error {
		attempts++
		out, runErr := e.runner.RunStep(ctx, worker, step)
		if runErr != nil {
			return runErr
		}
		output = out
		return nil
	}, bo, notify)
	return output, attempts, err
}

func (e *Executor) publish(topic string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(topic, payload, event.Normal)
}

// PlanStartedPayload is published on plan.started.
type PlanStartedPayload struct {
	PlanName string
}

// PlanStepPayload is published on plan.step.started and plan.step.done.
type PlanStepPayload struct {
	PlanName string
	StepID   string
	State    types.PlanStepState
}

// PlanCompletedPayload is published on plan.completed.
type PlanCompletedPayload struct {
	PlanName string
	Result   types.PlanResult
}
