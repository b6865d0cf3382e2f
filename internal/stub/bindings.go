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

// Package stub loads service bindings from YAML so workflow definitions can
// run locally against the real engine. Each (service, action) pair binds to
// a canned output, an optional artificial latency, and an optional scripted
// failure, which is enough to exercise conditions, retries, caching, and
// parallel fan-outs without any live backend.
package stub

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tombee/maestro/internal/log"
	"github.com/tombee/maestro/pkg/dispatch"
	"github.com/tombee/maestro/pkg/errors"
	"github.com/tombee/maestro/pkg/workflow"
)

// Bindings is the root of a stub bindings file.
type Bindings struct {
	Services map[string]Service `yaml:"services"`
}

// Service groups the bound actions of one service.
type Service struct {
	// RateLimit bounds the dispatch rate across every action of the
	// service. Useful for demonstrating retry-on-throttle behavior.
	RateLimit *RateLimit `yaml:"rate_limit,omitempty"`

	// Actions maps action names to their scripted behavior.
	Actions map[string]Action `yaml:"actions"`
}

// RateLimit configures a token-bucket limit for a service.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Action scripts the behavior of one (service, action) pair.
type Action struct {
	// Description is reported back by action listings.
	Description string `yaml:"description,omitempty"`

	// Output is the canned response. Handlers return a deep copy, so
	// executions never share state through it. A nil output yields an
	// empty map.
	Output map[string]any `yaml:"output,omitempty"`

	// Latency is slept before the handler responds, honoring the step
	// deadline.
	Latency workflow.Duration `yaml:"latency,omitempty"`

	// Fail scripts a dispatch failure instead of (or before) the output.
	Fail *Failure `yaml:"fail,omitempty"`
}

// Failure scripts a dispatch error. Times limits how many invocations fail
// before the action starts returning its output; zero means every
// invocation fails.
type Failure struct {
	Code      string `yaml:"code"`
	Message   string `yaml:"message,omitempty"`
	Retryable bool   `yaml:"retryable,omitempty"`
	Times     int    `yaml:"times,omitempty"`
}

// Load reads and parses a bindings file.
func Load(path string) (*Bindings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    "bindings",
			Reason: fmt.Sprintf("cannot read bindings file %s", path),
			Cause:  err,
		}
	}
	return Parse(data)
}

// Parse parses bindings from YAML and validates them.
func Parse(data []byte) (*Bindings, error) {
	var b Bindings
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, &errors.ConfigError{
			Key:    "bindings",
			Reason: "invalid bindings YAML",
			Cause:  err,
		}
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Bindings) validate() error {
	if len(b.Services) == 0 {
		return &errors.ValidationError{
			Field:      "services",
			Message:    "at least one service binding is required",
			Suggestion: "Add a services map binding each (service, action) pair the workflow names",
		}
	}
	for svcName, svc := range b.Services {
		if len(svc.Actions) == 0 {
			return &errors.ValidationError{
				Field:      "services." + svcName,
				Message:    "service has no actions",
				Suggestion: "Add an actions map with at least one action",
			}
		}
		if svc.RateLimit != nil && svc.RateLimit.RPS <= 0 {
			return &errors.ValidationError{
				Field:   "services." + svcName + ".rate_limit.rps",
				Message: "rps must be positive",
			}
		}
		for actName, act := range svc.Actions {
			field := "services." + svcName + ".actions." + actName
			if act.Latency < 0 {
				return &errors.ValidationError{
					Field:   field + ".latency",
					Message: "latency cannot be negative",
				}
			}
			if act.Fail != nil {
				if act.Fail.Code == "" {
					return &errors.ValidationError{
						Field:      field + ".fail.code",
						Message:    "fail.code is required",
						Suggestion: "Set a stable error code such as THROTTLED or UNAVAILABLE",
					}
				}
				if act.Fail.Times < 0 {
					return &errors.ValidationError{
						Field:   field + ".fail.times",
						Message: "fail.times cannot be negative",
					}
				}
			}
		}
	}
	return nil
}

// Table builds a dispatch table with one handler per bound action. Handlers
// sleep their scripted latency on the given clock, honor scripted failures,
// and log every invocation through the invocation middleware.
func (b *Bindings) Table(clock workflow.Clock, logger *slog.Logger) (*dispatch.Table, error) {
	if clock == nil {
		clock = workflow.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	mw := log.NewInvocationMiddleware(logger)

	table := dispatch.NewTable()
	for svcName, svc := range b.Services {
		for actName, act := range svc.Actions {
			handler := newHandler(svcName, actName, act, clock, mw)
			var err error
			if act.Description != "" {
				err = table.RegisterWithDescription(svcName, actName, act.Description, handler)
			} else {
				err = table.Register(svcName, actName, handler)
			}
			if err != nil {
				return nil, err
			}
		}
		if svc.RateLimit != nil {
			table.WithRateLimit(svcName, svc.RateLimit.RPS, svc.RateLimit.Burst)
		}
	}
	return table, nil
}

// newHandler builds the dispatch handler for one scripted action. The
// failure counter is shared across invocations of the same action, so
// "fail the first N calls" works across retries and executions alike.
func newHandler(service, action string, act Action, clock workflow.Clock, mw *log.InvocationMiddleware) dispatch.HandlerFunc {
	var mu sync.Mutex
	var calls int

	return func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		inv := &log.Invocation{Service: service, Action: action}
		return mw.HandlerWithOutput(inv, func() (map[string]any, error) {
			if err := clock.Sleep(ctx, act.Latency.Std()); err != nil {
				return nil, &errors.CancelledError{
					Reason: "stub latency interrupted",
					Cause:  err,
				}
			}

			if act.Fail != nil {
				mu.Lock()
				calls++
				n := calls
				mu.Unlock()
				if act.Fail.Times == 0 || n <= act.Fail.Times {
					msg := act.Fail.Message
					if msg == "" {
						msg = "scripted failure"
					}
					return nil, &errors.DispatchError{
						Service:   service,
						Action:    action,
						Code:      act.Fail.Code,
						Message:   msg,
						Retryable: act.Fail.Retryable,
					}
				}
			}

			if act.Output == nil {
				return map[string]any{}, nil
			}
			return copyMap(act.Output), nil
		})
	}
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}
