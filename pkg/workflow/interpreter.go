package workflow

import (
	"context"

	"github.com/tombee/maestro/pkg/errors"
)

// interpreter walks a workflow's step graph along onSuccess/onFailure
// transitions. There is exactly one driver per execution; concurrency fans
// out only at parallel-group boundaries inside the step executor.
type interpreter struct {
	executor *stepExecutor
	sem      chan struct{}
}

// run executes the workflow against the given context. The ctx carries
// the workflow-level deadline; its expiry or the caller's cancellation
// races the whole walk and always wins over individual step outcomes.
func (in *interpreter) run(ctx context.Context, wf *Workflow, exec *Execution, dryRun bool) *Result {
	var (
		finalOutput any
		failure     *errors.ErrorRecord
		current     = wf.Steps[0].ID
	)

	for current != "" {
		step := wf.findStep(current)
		if step == nil {
			break
		}

		var result *StepResult
		if len(step.Parallel) > 0 {
			result = in.executor.executeGroup(ctx, wf, step, exec, dryRun, in.sem)
		} else {
			result = in.executor.Execute(ctx, step, exec, dryRun)
		}
		exec.recordResult(result)

		switch result.Status {
		case StepStatusCompleted:
			finalOutput = result.Output
			current = step.OnSuccess

		case StepStatusFailed:
			switch {
			case step.OnFailure != "":
				current = step.OnFailure
			case wf.errorAction() == ErrorActionSkip:
				current = step.OnSuccess
			default:
				failure = result.Error
				current = ""
			}

		case StepStatusSkipped:
			current = step.OnSuccess

		case StepStatusCancelled:
			current = ""

		default:
			// The executor only returns terminal statuses; anything else
			// is an engine bug and fails the execution loudly.
			failure = errors.Record(&errors.InternalError{
				Op: "interpreter.transition",
			})
			current = ""
		}

		if ctx.Err() != nil {
			break
		}
	}

	return in.finish(ctx, wf, exec, finalOutput, failure)
}

// finish derives the terminal workflow result. Timeout and cancellation
// dominate; an unhandled step failure fails the workflow; everything else
// completes, including failures masked by the skip error action.
func (in *interpreter) finish(ctx context.Context, wf *Workflow, exec *Execution, finalOutput any, failure *errors.ErrorRecord) *Result {
	result := &Result{
		WorkflowID:  wf.ID,
		ExecutionID: exec.ID,
		StartedAt:   exec.StartedAt,
		Steps:       exec.Results(),
	}
	result.CompletedAt = in.executor.clock.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.Status = StatusTimedOut
		result.Error = &errors.ErrorRecord{
			Code:    errors.CodeWorkflowTimeout,
			Message: "workflow deadline exceeded",
		}
	case ctx.Err() != nil:
		result.Status = StatusCancelled
		result.Error = &errors.ErrorRecord{
			Code:    errors.CodeCancelled,
			Message: "workflow cancelled by caller",
		}
	case failure != nil:
		result.Status = StatusFailed
		result.Error = failure
	default:
		result.Status = StatusCompleted
		result.Output = finalOutput
	}
	return result
}
