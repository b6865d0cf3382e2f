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

package log

import (
	"log/slog"
	"time"
)

// Invocation represents a service invocation for logging purposes.
type Invocation struct {
	// Service is the target service name (e.g., "inventory").
	Service string

	// Action is the operation invoked on the service (e.g., "check-stock").
	Action string

	// ExecutionID is the workflow execution the invocation belongs to, if any.
	ExecutionID string

	// StepID is the workflow step that triggered the invocation, if any.
	StepID string

	// Metadata contains additional invocation metadata.
	Metadata map[string]any
}

// InvocationResult represents the outcome of a service invocation for logging.
type InvocationResult struct {
	// Success indicates whether the invocation succeeded.
	Success bool

	// Error is the error message if the invocation failed.
	Error string

	// DurationMs is the duration of the invocation in milliseconds.
	DurationMs int64

	// OutputFields is the number of top-level fields in the output.
	OutputFields int
}

// LogInvocation logs the start of a service invocation.
func LogInvocation(logger *slog.Logger, inv *Invocation) {
	attrs := []any{
		"event", "invocation",
		"service", inv.Service,
		"action", inv.Action,
	}

	if inv.ExecutionID != "" {
		attrs = append(attrs, "execution_id", inv.ExecutionID)
	}

	if inv.StepID != "" {
		attrs = append(attrs, "step_id", inv.StepID)
	}

	for k, v := range inv.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Debug("service invocation started", attrs...)
}

// LogInvocationResult logs the outcome of a service invocation.
func LogInvocationResult(logger *slog.Logger, inv *Invocation, res *InvocationResult) {
	attrs := []any{
		"event", "invocation_result",
		"service", inv.Service,
		"action", inv.Action,
		"success", res.Success,
		"duration_ms", res.DurationMs,
	}

	if inv.ExecutionID != "" {
		attrs = append(attrs, "execution_id", inv.ExecutionID)
	}

	if inv.StepID != "" {
		attrs = append(attrs, "step_id", inv.StepID)
	}

	if res.Error != "" {
		attrs = append(attrs, "error", res.Error)
	}

	if res.OutputFields > 0 {
		attrs = append(attrs, "output_fields", res.OutputFields)
	}

	level := slog.LevelDebug
	message := "service invocation completed"

	if !res.Success {
		level = slog.LevelWarn
		message = "service invocation failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// InvocationMiddleware wraps service handlers with logging.
// It logs the invocation when it starts and the outcome when it completes.
type InvocationMiddleware struct {
	logger *slog.Logger
}

// NewInvocationMiddleware creates a new invocation logging middleware.
func NewInvocationMiddleware(logger *slog.Logger) *InvocationMiddleware {
	return &InvocationMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that performs a service invocation.
// It logs the invocation and its outcome automatically.
func (m *InvocationMiddleware) Handler(inv *Invocation, handler func() error) error {
	start := time.Now()

	LogInvocation(m.logger, inv)

	err := handler()

	duration := time.Since(start).Milliseconds()

	res := &InvocationResult{
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		res.Error = err.Error()
	}

	LogInvocationResult(m.logger, inv, res)

	return err
}

// HandlerWithOutput wraps a function that performs a service invocation and
// returns its output. The output itself is never logged, only its shape.
func (m *InvocationMiddleware) HandlerWithOutput(inv *Invocation, handler func() (map[string]any, error)) (map[string]any, error) {
	start := time.Now()

	LogInvocation(m.logger, inv)

	output, err := handler()

	duration := time.Since(start).Milliseconds()

	res := &InvocationResult{
		Success:      err == nil,
		DurationMs:   duration,
		OutputFields: len(output),
	}

	if err != nil {
		res.Error = err.Error()
	}

	LogInvocationResult(m.logger, inv, res)

	return output, err
}
