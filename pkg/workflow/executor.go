package workflow

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/maestro/pkg/errors"
)

// Cache event names recorded through the metrics collector.
const (
	cacheEventHit        = "hit"
	cacheEventMiss       = "miss"
	cacheEventError      = "error"
	cacheEventStore      = "store"
	cacheEventStoreError = "store_error"
)

// stepExecutor executes one step end to end: guard, cache lookup, input
// resolution, deadline-bound retried dispatch, cache store, result record.
// It holds the collaborator interfaces and never references concrete
// services.
type stepExecutor struct {
	dispatcher ServiceDispatcher
	cache      Cache
	clock      Clock
	logger     *slog.Logger
	metrics    MetricsCollector
	tracer     trace.Tracer
}

// Execute runs a step including its condition guard. Exactly one terminal
// result is returned per invocation; errors are embedded, never raised.
func (e *stepExecutor) Execute(ctx context.Context, step *Step, exec *Execution, dryRun bool) *StepResult {
	if !EvaluateConditions(step.Conditions, exec) {
		now := e.clock.Now()
		e.logger.Debug("step skipped by condition",
			"execution_id", exec.ID,
			"step_id", step.ID,
		)
		return &StepResult{
			StepID:      step.ID,
			Status:      StepStatusSkipped,
			StartedAt:   now,
			CompletedAt: now,
		}
	}
	return e.run(ctx, step, exec, dryRun)
}

// run executes a step whose guard has already passed. The parallel group
// executor calls this directly: siblings inherit the head's guard and are
// never re-evaluated.
func (e *stepExecutor) run(ctx context.Context, step *Step, exec *Execution, dryRun bool) *StepResult {
	result := &StepResult{
		StepID:    step.ID,
		Status:    StepStatusRunning,
		StartedAt: e.clock.Now(),
	}

	ctx, span := e.startSpan(ctx, step, exec)
	defer func() {
		e.endSpan(span, result)
		e.metrics.StepCompleted(ctx, exec.WorkflowID, step.ID, result.Status, result.Duration())
	}()

	if dryRun {
		result.Status = StepStatusCompleted
		result.CompletedAt = e.clock.Now()
		return result
	}

	cacheable := e.cache != nil && step.Cache != nil && step.Cache.Enabled
	var key string
	if cacheable {
		key = cacheKey(step.Cache, step.ID, exec.UserID, exec.WorkflowID)
		if value, hit := e.cacheGet(ctx, exec, step, key); hit {
			result.Status = StepStatusCompleted
			result.Output = value
			result.Cached = true
			result.CompletedAt = e.clock.Now()
			return result
		}
	}

	input := ResolveInput(step, exec)

	// Effective deadline = min(step timeout, remaining workflow budget).
	// The incoming ctx already carries the workflow deadline, so the
	// nested timeout only ever tightens it.
	attemptCtx := ctx
	if timeout := step.Timeout.Std(); timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var output map[string]any
	attempts, err := runAttempts(attemptCtx, e.clock, step.Retry, func(attempt int) error {
		e.logger.Debug("dispatching step",
			"execution_id", exec.ID,
			"step_id", step.ID,
			"service", step.Service,
			"action", step.Action,
			"attempt", attempt,
		)
		out, dispatchErr := e.dispatcher.Invoke(attemptCtx, step.Service, step.Action, input)
		if dispatchErr != nil {
			return dispatchErr
		}
		output = out
		return nil
	})
	result.Attempts = attempts
	result.CompletedAt = e.clock.Now()

	if err != nil {
		// The workflow-level deadline or caller cancellation dominates a
		// step's own failure.
		if ctx.Err() != nil {
			result.Status = StepStatusCancelled
			result.Error = errors.Record(&errors.CancelledError{
				Reason: "workflow cancelled while step was in flight",
				Cause:  ctx.Err(),
			})
			return result
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &errors.TimeoutError{
				Operation: "step " + step.ID,
				Duration:  step.Timeout.Std(),
				Cause:     err,
			}
		}
		e.logger.Warn("step failed",
			"execution_id", exec.ID,
			"step_id", step.ID,
			"attempts", attempts,
			"error", err,
		)
		result.Status = StepStatusFailed
		result.Error = errors.Record(err)
		return result
	}

	if cacheable {
		e.cachePut(ctx, exec, step, key, output)
	}

	result.Status = StepStatusCompleted
	result.Output = output
	return result
}

// cacheGet looks the step's key up, treating backend errors as misses.
func (e *stepExecutor) cacheGet(ctx context.Context, exec *Execution, step *Step, key string) (any, bool) {
	value, hit, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		e.logger.Warn("cache get failed, treating as miss",
			"execution_id", exec.ID,
			"step_id", step.ID,
			"error", err,
		)
		e.metrics.CacheEvent(ctx, exec.WorkflowID, step.ID, cacheEventError)
		return nil, false
	case hit:
		e.logger.Debug("cache hit",
			"execution_id", exec.ID,
			"step_id", step.ID,
		)
		e.metrics.CacheEvent(ctx, exec.WorkflowID, step.ID, cacheEventHit)
		return value, true
	default:
		e.metrics.CacheEvent(ctx, exec.WorkflowID, step.ID, cacheEventMiss)
		return nil, false
	}
}

// cachePut stores a successful output. Best-effort: failures are logged
// and never fail the step. Failures themselves are never cached.
func (e *stepExecutor) cachePut(ctx context.Context, exec *Execution, step *Step, key string, output map[string]any) {
	if err := e.cache.Put(ctx, key, output, step.Cache.TTL.Std()); err != nil {
		e.logger.Warn("cache put failed",
			"execution_id", exec.ID,
			"step_id", step.ID,
			"error", err,
		)
		e.metrics.CacheEvent(ctx, exec.WorkflowID, step.ID, cacheEventStoreError)
		return
	}
	e.metrics.CacheEvent(ctx, exec.WorkflowID, step.ID, cacheEventStore)
}

func (e *stepExecutor) startSpan(ctx context.Context, step *Step, exec *Execution) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, nil
	}
	return e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.id", exec.WorkflowID),
		attribute.String("workflow.execution_id", exec.ID),
		attribute.String("workflow.step_id", step.ID),
		attribute.String("workflow.service", step.Service),
		attribute.String("workflow.action", step.Action),
	))
}

func (e *stepExecutor) endSpan(span trace.Span, result *StepResult) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.String("workflow.step_status", string(result.Status)),
		attribute.Int("workflow.step_attempts", result.Attempts),
		attribute.Bool("workflow.step_cached", result.Cached),
	)
	if result.Status == StepStatusFailed && result.Error != nil {
		span.SetStatus(codes.Error, result.Error.Message)
	}
	span.End()
}
