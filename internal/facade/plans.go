package facade

import (
	"context"

	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// CreateManager implements create_manager.
func (k *Kernel) CreateManager(name string, workers []string, workerRoles map[string]string, strategy types.Strategy) (*types.Manager, error) {
	return k.managers.Register(name, workers, workerRoles, strategy)
}

// DelegateTask implements delegate_task: picks one worker from manager's
// pool per its strategy and dispatches task as a single-step plan.
func (k *Kernel) DelegateTask(ctx context.Context, manager, task, role string) (types.StepOutcome, error) {
	step := types.PlanStep{ID: "delegate", Task: task, Role: role}
	worker, err := k.managers.SelectWorker(manager, step)
	if err != nil {
		return types.StepOutcome{}, err
	}
	defer k.managers.ReleaseWorker(manager, worker)

	out, runErr := k.runner.RunStep(ctx, worker, step)
	outcome := types.StepOutcome{StepID: step.ID, Worker: worker, Output: out}
	if runErr != nil {
		outcome.State = types.StepFailed
		outcome.Error = runErr.Error()
		return outcome, runErr
	}
	outcome.State = types.StepSucceeded
	return outcome, nil
}

// ExecutePlan implements execute_plan.
func (k *Kernel) ExecutePlan(ctx context.Context, manager string, plan types.Plan) (types.PlanResult, error) {
	return k.executor.Run(ctx, plan, manager)
}

// AddWorkerToManager implements add_worker_to_manager.
func (k *Kernel) AddWorkerToManager(manager, worker, role string) error {
	return k.managers.AddWorker(manager, worker, role)
}

// RemoveWorkerFromManager implements remove_worker_from_manager.
func (k *Kernel) RemoveWorkerFromManager(manager, worker string) error {
	return k.managers.RemoveWorker(manager, worker)
}
