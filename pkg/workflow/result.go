package workflow

import (
	"time"

	"github.com/tombee/maestro/pkg/errors"
)

// StepStatus represents the execution status of a workflow step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not started yet.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step is currently executing.
	StepStatusRunning StepStatus = "running"
	// StepStatusCompleted indicates the step finished with an output.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the step exhausted its attempts with an error.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates the step's conditions evaluated to false.
	StepStatusSkipped StepStatus = "skipped"
	// StepStatusCancelled indicates the workflow deadline or the caller
	// cancelled the execution while the step was in flight.
	StepStatusCancelled StepStatus = "cancelled"
)

// StepResult records one terminal outcome of a step execution.
//
// Invariants: completed implies Output is set and Error is nil; failed
// implies Error is set; skipped implies zero attempts and no cache touch;
// cancelled implies the workflow-level deadline or caller cancellation
// fired before the step finished.
type StepResult struct {
	// StepID is the id of the executed step
	StepID string `json:"step_id" yaml:"step_id"`

	// Status is the terminal step status
	Status StepStatus `json:"status" yaml:"status"`

	// Output is the step's output: a map for single dispatches, an
	// ordered list for parallel merges
	Output any `json:"output,omitempty" yaml:"output,omitempty"`

	// Error carries the failure when Status is failed or cancelled
	Error *errors.ErrorRecord `json:"error,omitempty" yaml:"error,omitempty"`

	// StartedAt is when the step execution began
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	// CompletedAt is when the step execution finished
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`

	// Attempts counts dispatches; zero for skipped steps and cache hits
	Attempts int `json:"attempts" yaml:"attempts"`

	// Cached marks a completed result served from the cache
	Cached bool `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// Duration returns how long the step ran.
func (r *StepResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// clone deep-copies the result so snapshots never alias recorded state.
func (r *StepResult) clone() StepResult {
	out := *r
	out.Output = copyValueDeep(r.Output)
	if r.Error != nil {
		rec := *r.Error
		rec.Details = copyMapDeep(r.Error.Details)
		out.Error = &rec
	}
	return out
}

// Status represents the terminal status of a workflow execution.
type Status string

const (
	// StatusRunning marks an execution still in flight; it appears only on
	// async stubs and execution snapshots, never on a terminal Result.
	StatusRunning Status = "running"
	// StatusCompleted marks a walk that ended with no unhandled failure.
	StatusCompleted Status = "completed"
	// StatusFailed marks a walk stopped by an unhandled step failure.
	StatusFailed Status = "failed"
	// StatusCancelled marks caller cancellation or a disabled feature flag.
	StatusCancelled Status = "cancelled"
	// StatusTimedOut marks an execution stopped by the workflow deadline.
	StatusTimedOut Status = "timedOut"
)

// Result is the inspectable record of one workflow execution.
type Result struct {
	// WorkflowID identifies the executed workflow
	WorkflowID string `json:"workflow_id" yaml:"workflow_id"`

	// ExecutionID uniquely identifies this execution
	ExecutionID string `json:"execution_id" yaml:"execution_id"`

	// Status is the terminal workflow status
	Status Status `json:"status" yaml:"status"`

	// Output is the last completed step's output along the taken path
	Output any `json:"output,omitempty" yaml:"output,omitempty"`

	// Steps lists every recorded step result in execution order
	Steps []StepResult `json:"steps" yaml:"steps"`

	// StartedAt is when the execution was created
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	// CompletedAt is when the terminal status was recorded
	CompletedAt time.Time `json:"completed_at" yaml:"completed_at"`

	// Duration is CompletedAt minus StartedAt
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Error carries the workflow-level failure, if any
	Error *errors.ErrorRecord `json:"error,omitempty" yaml:"error,omitempty"`
}
