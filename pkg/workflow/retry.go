package workflow

import (
	"context"
	"slices"
	"time"

	"github.com/tombee/maestro/pkg/errors"
)

// runAttempts drives fn under the step's retry spec. The attempt counter
// starts at 1; success returns immediately; a non-retryable error or an
// exhausted cap returns the last error; otherwise the controller sleeps
// initialDelay * multiplier^(attempt-1) on the injected clock and goes
// again. A nil spec means a single attempt.
//
// The returned count is the number of dispatches performed, in
// [1, MaxAttempts]. The controller is sequential; concurrency belongs to
// the parallel group executor, not here.
func runAttempts(ctx context.Context, clock Clock, spec *RetrySpec, fn func(attempt int) error) (int, error) {
	maxAttempts := 1
	var delay time.Duration
	multiplier := 1.0
	if spec != nil {
		maxAttempts = spec.MaxAttempts
		delay = spec.InitialDelay.Std()
		if spec.Multiplier > 0 {
			multiplier = spec.Multiplier
		}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 1
	for {
		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if attempt >= maxAttempts || !retryAllowed(spec, err) {
			return attempt, err
		}
		if sleepErr := clock.Sleep(ctx, delay); sleepErr != nil {
			return attempt, &errors.CancelledError{
				Reason: "retry backoff interrupted",
				Cause:  sleepErr,
			}
		}
		delay = time.Duration(float64(delay) * multiplier)
		attempt++
	}
}

// retryAllowed applies the retry spec's whitelist semantics. Transient
// errors retry freely under an empty whitelist and by code under a
// non-empty one. Timeouts retry only when their code is listed explicitly.
// Validation, cancellation, gating, and internal errors never retry.
func retryAllowed(spec *RetrySpec, err error) bool {
	if spec == nil {
		return false
	}
	switch errors.KindOf(err) {
	case errors.KindTransient:
		if len(spec.RetryableErrors) == 0 {
			return true
		}
		return slices.Contains(spec.RetryableErrors, errors.CodeOf(err))
	case errors.KindTimeout:
		return slices.Contains(spec.RetryableErrors, errors.CodeOf(err))
	default:
		return false
	}
}
