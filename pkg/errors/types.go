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

// Package errors defines the typed errors the engine and its collaborators
// exchange. Classification into kinds and stable codes lives in classify.go;
// the types here only carry the facts.
package errors

import (
	"fmt"
	"time"
)

// ValidationError represents malformed workflow definitions, bad step
// references, or invalid input shapes. Never retried.
type ValidationError struct {
	// Field identifies what failed validation (e.g., "steps[2].retry.maxAttempts")
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a missing registered resource.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workflow", "execution", "handler")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// DispatchError represents a failure reported by a downstream service
// handler. The dispatcher tags transient conditions (throttling, connection
// resets, retryable 5xx) with Retryable so the retry controller can tell
// them apart from permanent failures.
type DispatchError struct {
	// Service is the downstream service name (e.g., "personalization")
	Service string

	// Action is the invoked action name (e.g., "getRecommendations")
	Action string

	// Code is the handler-reported error code (e.g., "THROTTLED")
	Code string

	// Message is the human-readable error message
	Message string

	// Retryable marks transient conditions a retry spec may act on
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("dispatch %s.%s failed", e.Service, e.Action)
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents a step exceeding its effective deadline.
// Non-retryable unless the step's retryable set lists STEP_TIMEOUT
// explicitly.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "step fetch-cart")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// CancelledError represents the workflow deadline or the caller cancelling
// an execution while work was still in flight.
type CancelledError struct {
	// Reason describes what triggered the cancellation
	Reason string

	// Cause is the underlying error (typically a context error)
	Cause error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cancelled: %s", e.Reason)
	}
	return "cancelled"
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// GatedError represents a workflow whose feature-flag trigger evaluated to
// disabled. The execution never starts; no steps run.
type GatedError struct {
	// Flag is the feature-flag key that gated the workflow off
	Flag string
}

// Error implements the error interface.
func (e *GatedError) Error() string {
	return fmt.Sprintf("workflow gated off by feature flag %s", e.Flag)
}

// InternalError represents an engine invariant violation. Fatal, surfaced
// to the caller with a distinct code.
type InternalError struct {
	// Op names the engine operation that failed (e.g., "interpreter.transition")
	Op string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error in %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("internal error in %s", e.Op)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *InternalError) Unwrap() error {
	return e.Cause
}

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "cache.backend")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
