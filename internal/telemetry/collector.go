// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tombee/maestro/pkg/workflow"
)

// Collector implements workflow.MetricsCollector on OpenTelemetry
// instruments. Series carry low-cardinality attributes only: workflow and
// step ids, statuses, and cache event names. Execution ids never become
// attributes; they only key the active-execution gauge.
type Collector struct {
	meter metric.Meter

	// Counters
	executionsTotal  metric.Int64Counter
	stepsTotal       metric.Int64Counter
	cacheEventsTotal metric.Int64Counter

	// Histograms
	executionDuration metric.Float64Histogram
	stepDuration      metric.Float64Histogram

	// Active executions back the maestro_active_executions gauge
	active   map[string]bool
	activeMu sync.RWMutex
}

var _ workflow.MetricsCollector = (*Collector)(nil)

// NewCollector creates a new metrics collector using the given meter provider
func NewCollector(meterProvider metric.MeterProvider) (*Collector, error) {
	meter := meterProvider.Meter("maestro")

	c := &Collector{
		meter:  meter,
		active: make(map[string]bool),
	}

	var err error

	// Initialize counters
	c.executionsTotal, err = meter.Int64Counter(
		"maestro_executions_total",
		metric.WithDescription("Total number of workflow executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	c.stepsTotal, err = meter.Int64Counter(
		"maestro_steps_total",
		metric.WithDescription("Total number of workflow steps executed"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	c.cacheEventsTotal, err = meter.Int64Counter(
		"maestro_cache_events_total",
		metric.WithDescription("Total number of step cache events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	// Initialize histograms
	c.executionDuration, err = meter.Float64Histogram(
		"maestro_execution_duration_seconds",
		metric.WithDescription("Workflow execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	c.stepDuration, err = meter.Float64Histogram(
		"maestro_step_duration_seconds",
		metric.WithDescription("Step execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	// Initialize observable gauges
	_, err = meter.Int64ObservableGauge(
		"maestro_active_executions",
		metric.WithDescription("Number of currently active workflow executions"),
		metric.WithUnit("{execution}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			c.activeMu.RLock()
			count := len(c.active)
			c.activeMu.RUnlock()
			observer.Observe(int64(count))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// ExecutionStarted tracks the execution as active
func (c *Collector) ExecutionStarted(ctx context.Context, workflowID, executionID string) {
	c.activeMu.Lock()
	c.active[executionID] = true
	c.activeMu.Unlock()
}

// ExecutionCompleted records the terminal status and duration of an
// execution and drops it from the active set
func (c *Collector) ExecutionCompleted(ctx context.Context, workflowID, executionID string, status workflow.Status, duration time.Duration) {
	c.activeMu.Lock()
	delete(c.active, executionID)
	c.activeMu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("workflow", workflowID),
		attribute.String("status", string(status)),
	}

	c.executionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.executionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// StepCompleted records one terminal step result
func (c *Collector) StepCompleted(ctx context.Context, workflowID, stepID string, status workflow.StepStatus, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("workflow", workflowID),
		attribute.String("step", stepID),
		attribute.String("status", string(status)),
	}

	c.stepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	c.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// CacheEvent records one cache interaction for a step
func (c *Collector) CacheEvent(ctx context.Context, workflowID, stepID, event string) {
	attrs := []attribute.KeyValue{
		attribute.String("workflow", workflowID),
		attribute.String("step", stepID),
		attribute.String("event", event),
	}

	c.cacheEventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
