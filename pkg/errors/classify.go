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

package errors

import (
	"context"
	"errors"
	"strings"
)

// Kind is the coarse error category the engine acts on: retry decisions,
// transition handling, and terminal workflow status all key off it.
type Kind string

const (
	// KindValidation marks malformed definitions, unknown service/action
	// pairs, and bad input shapes. Fatal; never retried.
	KindValidation Kind = "validation"

	// KindTransient marks retryable downstream failures such as throttling
	// or connection resets.
	KindTransient Kind = "transient"

	// KindTimeout marks an exceeded step deadline. Non-retryable by default.
	KindTimeout Kind = "timeout"

	// KindCancelled marks workflow-level timeout or caller cancellation.
	KindCancelled Kind = "cancelled"

	// KindGated marks a workflow whose feature flag evaluated to disabled.
	KindGated Kind = "gated"

	// KindInternal marks engine invariant violations.
	KindInternal Kind = "internal"
)

// Stable codes recorded on step and workflow results.
const (
	CodeValidation      = "VALIDATION"
	CodeUnknownAction   = "UNKNOWN_ACTION"
	CodeStepTimeout     = "STEP_TIMEOUT"
	CodeWorkflowTimeout = "WORKFLOW_TIMEOUT"
	CodeCancelled       = "CANCELLED"
	CodeWorkflowSkipped = "WORKFLOW_SKIPPED"
	CodeInternal        = "INTERNAL"
)

// Classifier lets error types outside this package report their own kind
// and code. Handler implementations can return classified errors instead of
// wrapping everything in DispatchError.
type Classifier interface {
	error

	// ErrorKind returns the coarse category for retry and propagation.
	ErrorKind() Kind

	// ErrorCode returns the stable code recorded on results.
	ErrorCode() string
}

// KindOf classifies err. Unknown non-nil errors are KindInternal; nil maps
// to the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var classifier Classifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}

	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		dispatchErr   *DispatchError
		timeoutErr    *TimeoutError
		cancelledErr  *CancelledError
		gatedErr      *GatedError
		internalErr   *InternalError
		configErr     *ConfigError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &notFoundErr), errors.As(err, &configErr):
		return KindValidation
	case errors.As(err, &dispatchErr):
		switch {
		case dispatchErr.Retryable:
			return KindTransient
		case dispatchErr.Code == CodeUnknownAction:
			return KindValidation
		default:
			return KindInternal
		}
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &cancelledErr):
		return KindCancelled
	case errors.As(err, &gatedErr):
		return KindGated
	case errors.As(err, &internalErr):
		return KindInternal
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindInternal
	}
}

// CodeOf returns the stable code for err, CodeInternal when nothing more
// specific applies, and the empty string for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	var classifier Classifier
	if errors.As(err, &classifier) {
		return classifier.ErrorCode()
	}

	var (
		notFoundErr  *NotFoundError
		dispatchErr  *DispatchError
		timeoutErr   *TimeoutError
		cancelledErr *CancelledError
		gatedErr     *GatedError
	)
	switch {
	case errors.As(err, &notFoundErr):
		if notFoundErr.Resource == "" {
			return "NOT_FOUND"
		}
		return strings.ToUpper(strings.ReplaceAll(notFoundErr.Resource, " ", "_")) + "_NOT_FOUND"
	case errors.As(err, &dispatchErr):
		if dispatchErr.Code != "" {
			return dispatchErr.Code
		}
		return CodeInternal
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return CodeStepTimeout
	case errors.As(err, &cancelledErr), errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.As(err, &gatedErr):
		return CodeWorkflowSkipped
	case KindOf(err) == KindValidation:
		return CodeValidation
	default:
		return CodeInternal
	}
}

// Retryable reports whether err is transient. The per-step retryable-code
// whitelist can widen this; it never narrows it below KindTransient.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// ErrorRecord is the serializable form embedded in step and workflow
// results.
type ErrorRecord struct {
	Code    string         `json:"code" yaml:"code"`
	Message string         `json:"message" yaml:"message"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Record converts err into an ErrorRecord, pulling structured detail from
// the known types. Returns nil for nil.
func Record(err error) *ErrorRecord {
	if err == nil {
		return nil
	}

	rec := &ErrorRecord{
		Code:    CodeOf(err),
		Message: err.Error(),
	}

	var (
		validationErr *ValidationError
		dispatchErr   *DispatchError
		timeoutErr    *TimeoutError
		gatedErr      *GatedError
	)
	switch {
	case errors.As(err, &validationErr):
		rec.Details = map[string]any{}
		if validationErr.Field != "" {
			rec.Details["field"] = validationErr.Field
		}
		if validationErr.Suggestion != "" {
			rec.Details["suggestion"] = validationErr.Suggestion
		}
		if len(rec.Details) == 0 {
			rec.Details = nil
		}
	case errors.As(err, &dispatchErr):
		rec.Details = map[string]any{
			"service":   dispatchErr.Service,
			"action":    dispatchErr.Action,
			"retryable": dispatchErr.Retryable,
		}
	case errors.As(err, &timeoutErr):
		rec.Details = map[string]any{
			"operation": timeoutErr.Operation,
			"timeout":   timeoutErr.Duration.String(),
		}
	case errors.As(err, &gatedErr):
		rec.Details = map[string]any{"flag": gatedErr.Flag}
	}

	return rec
}
