package workflow

import (
	"context"
	"time"
)

// MetricsCollector receives execution and step lifecycle events. The
// orchestrator calls it on the hot path, so implementations must be cheap
// and must never block; the OTel-backed implementation lives in
// internal/telemetry and a no-op is used when none is configured.
type MetricsCollector interface {
	// ExecutionStarted fires when an execution enters the live registry.
	ExecutionStarted(ctx context.Context, workflowID, executionID string)

	// ExecutionCompleted fires once per execution with its terminal status.
	ExecutionCompleted(ctx context.Context, workflowID, executionID string, status Status, duration time.Duration)

	// StepCompleted fires once per step result, cache hits and skips
	// included.
	StepCompleted(ctx context.Context, workflowID, stepID string, status StepStatus, duration time.Duration)

	// CacheEvent fires on cache interactions: hit, miss, error, store,
	// store_error.
	CacheEvent(ctx context.Context, workflowID, stepID, event string)
}

// noopMetrics is the default collector.
type noopMetrics struct{}

func (noopMetrics) ExecutionStarted(context.Context, string, string) {}
func (noopMetrics) ExecutionCompleted(context.Context, string, string, Status, time.Duration) {
}
func (noopMetrics) StepCompleted(context.Context, string, string, StepStatus, time.Duration) {}
func (noopMetrics) CacheEvent(context.Context, string, string, string)                       {}
