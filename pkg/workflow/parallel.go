package workflow

import (
	"context"
	"fmt"

	"github.com/tombee/maestro/pkg/errors"
)

// executeGroup runs a head step plus its declared parallel siblings
// concurrently, one goroutine per task, and merges their results at the
// head's id. The head's guard is evaluated once for the whole group;
// siblings inherit it. The head itself runs exactly once — its raw output
// is element zero of the merged list, never a duplicated record.
//
// Each sibling's individual result is recorded into the execution under
// its own step id so later steps can reference it via fromStep; the merged
// result occupies the head's slot. The merged output is an ordered list
// aligned with head-then-siblings declaration order, status completed iff
// every task completed, failed otherwise with the first failure's error.
func (e *stepExecutor) executeGroup(ctx context.Context, wf *Workflow, head *Step, exec *Execution, dryRun bool, sem chan struct{}) *StepResult {
	if !EvaluateConditions(head.Conditions, exec) {
		now := e.clock.Now()
		e.logger.Debug("parallel group skipped by head condition",
			"execution_id", exec.ID,
			"step_id", head.ID,
		)
		return &StepResult{
			StepID:      head.ID,
			Status:      StepStatusSkipped,
			StartedAt:   now,
			CompletedAt: now,
		}
	}

	type groupTask struct {
		id   string
		step *Step
	}
	tasks := make([]groupTask, 0, len(head.Parallel)+1)
	tasks = append(tasks, groupTask{id: head.ID, step: head})
	for _, id := range head.Parallel {
		tasks = append(tasks, groupTask{id: id, step: wf.findStep(id)})
	}

	startedAt := e.clock.Now()
	e.logger.Debug("starting parallel group",
		"execution_id", exec.ID,
		"step_id", head.ID,
		"task_count", len(tasks),
	)

	type taskResult struct {
		index  int
		result *StepResult
	}
	results := make(chan taskResult, len(tasks))

	for i, task := range tasks {
		go func(index int, task groupTask) {
			results <- taskResult{index: index, result: e.runTask(ctx, task.id, task.step, exec, dryRun, sem)}
		}(i, task)
	}

	ordered := make([]*StepResult, len(tasks))
	for range tasks {
		r := <-results
		ordered[r.index] = r.result
	}

	merged := &StepResult{
		StepID:      head.ID,
		Status:      StepStatusCompleted,
		StartedAt:   startedAt,
		CompletedAt: e.clock.Now(),
		Attempts:    ordered[0].Attempts,
	}
	outputs := make([]any, len(ordered))
	for i, res := range ordered {
		outputs[i] = res.Output
		// Siblings are recorded under their own ids; the head's slot is
		// taken by the merged result below.
		if i > 0 {
			exec.recordResult(res)
		}
		if res.Status != StepStatusCompleted && merged.Status == StepStatusCompleted {
			merged.Status = StepStatusFailed
			merged.Error = res.Error
			if res.Status == StepStatusCancelled {
				merged.Status = StepStatusCancelled
			}
		}
	}
	merged.Output = outputs

	e.logger.Debug("parallel group complete",
		"execution_id", exec.ID,
		"step_id", head.ID,
		"status", merged.Status,
		"duration", merged.Duration(),
	)
	return merged
}

// runTask executes one group member, bounded by the orchestrator's
// parallel-task semaphore when one is configured.
func (e *stepExecutor) runTask(ctx context.Context, id string, step *Step, exec *Execution, dryRun bool, sem chan struct{}) *StepResult {
	if step == nil {
		// Registration validates sibling references; reaching this means
		// an engine invariant broke.
		now := e.clock.Now()
		return &StepResult{
			StepID:      id,
			Status:      StepStatusFailed,
			StartedAt:   now,
			CompletedAt: now,
			Error: errors.Record(&errors.InternalError{
				Op:    "parallel.resolveSibling",
				Cause: fmt.Errorf("sibling step %q not found in workflow", id),
			}),
		}
	}

	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			now := e.clock.Now()
			return &StepResult{
				StepID:      step.ID,
				Status:      StepStatusCancelled,
				StartedAt:   now,
				CompletedAt: now,
				Error: errors.Record(&errors.CancelledError{
					Reason: "cancelled while waiting for a parallel slot",
					Cause:  ctx.Err(),
				}),
			}
		}
	}

	return e.run(ctx, step, exec, dryRun)
}
