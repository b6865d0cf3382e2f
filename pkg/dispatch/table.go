// Package dispatch provides the in-process ServiceDispatcher
// implementation: a typed registry of (service, action) handlers.
//
// The engine stays agnostic about how services are reached; a Table binds
// each (service, action) pair a workflow names to a Go handler. Unknown
// pairs fail with a validation-kind dispatch error, so a misspelled action
// is never retried. Workflows can be pre-verified against a table before
// execution with ValidateWorkflow.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tombee/maestro/pkg/errors"
	"github.com/tombee/maestro/pkg/workflow"
)

// HandlerFunc executes one action invocation. The context carries the
// effective step deadline; implementations should honor it.
type HandlerFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// ActionInfo describes one registered action for listings.
type ActionInfo struct {
	// Service is the owning service name
	Service string `json:"service"`

	// Action is the action name within the service
	Action string `json:"action"`

	// Description is the optional human-readable summary
	Description string `json:"description,omitempty"`
}

type handlerEntry struct {
	fn          HandlerFunc
	description string
}

// Table is a concurrency-safe (service, action) handler registry. The zero
// value is not usable; construct with NewTable.
type Table struct {
	mu       sync.RWMutex
	services map[string]map[string]handlerEntry
	limiters map[string]*rate.Limiter
}

// Compile-time check that Table satisfies the engine's dispatcher contract.
var _ workflow.ServiceDispatcher = (*Table)(nil)

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{
		services: make(map[string]map[string]handlerEntry),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Register binds a handler to a (service, action) pair. Re-registering an
// existing pair is an error; tables are assembled once at startup.
func (t *Table) Register(service, action string, fn HandlerFunc) error {
	return t.RegisterWithDescription(service, action, "", fn)
}

// RegisterWithDescription is Register with a human-readable summary that
// Actions reports back.
func (t *Table) RegisterWithDescription(service, action, description string, fn HandlerFunc) error {
	if service == "" {
		return &errors.ValidationError{
			Field:   "service",
			Message: "service name is required",
		}
	}
	if action == "" {
		return &errors.ValidationError{
			Field:   "action",
			Message: "action name is required",
		}
	}
	if fn == nil {
		return &errors.ValidationError{
			Field:   "handler",
			Message: fmt.Sprintf("handler for %s.%s is nil", service, action),
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	actions, ok := t.services[service]
	if !ok {
		actions = make(map[string]handlerEntry)
		t.services[service] = actions
	}
	if _, exists := actions[action]; exists {
		return &errors.ValidationError{
			Field:      "handler",
			Message:    fmt.Sprintf("handler already registered for %s.%s", service, action),
			Suggestion: "Each (service, action) pair binds exactly one handler",
		}
	}
	actions[action] = handlerEntry{fn: fn, description: description}
	return nil
}

// WithRateLimit bounds a service's dispatch rate. Invocations wait for a
// token before the handler runs; waits are bounded by the step deadline.
// Returns the table for registration chaining.
func (t *Table) WithRateLimit(service string, rps float64, burst int) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiters[service] = rate.NewLimiter(rate.Limit(rps), burst)
	return t
}

// Invoke implements workflow.ServiceDispatcher.
func (t *Table) Invoke(ctx context.Context, service, action string, input map[string]any) (map[string]any, error) {
	t.mu.RLock()
	entry, ok := t.services[service][action]
	limiter := t.limiters[service]
	t.mu.RUnlock()

	if !ok {
		return nil, &errors.DispatchError{
			Service: service,
			Action:  action,
			Code:    errors.CodeUnknownAction,
			Message: "no handler registered",
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, &errors.CancelledError{
					Reason: fmt.Sprintf("rate limit wait for %s.%s", service, action),
					Cause:  err,
				}
			}
			// The wait cannot finish inside the remaining deadline.
			return nil, &errors.DispatchError{
				Service:   service,
				Action:    action,
				Code:      "RATE_LIMITED",
				Message:   err.Error(),
				Retryable: true,
			}
		}
	}

	return entry.fn(ctx, input)
}

// Has reports whether a handler is registered for the pair.
func (t *Table) Has(service, action string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.services[service][action]
	return ok
}

// Services returns the registered service names, sorted.
func (t *Table) Services() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.services))
	for name := range t.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Actions returns the registered actions of a service, sorted by action
// name. Unknown services yield an empty list.
func (t *Table) Actions(service string) []ActionInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	actions := t.services[service]
	out := make([]ActionInfo, 0, len(actions))
	for name, entry := range actions {
		out = append(out, ActionInfo{
			Service:     service,
			Action:      name,
			Description: entry.description,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}

// ValidateWorkflow verifies that every step of the workflow resolves to a
// registered handler. Run it at registration time to catch dangling
// service references before the first execution.
func (t *Table) ValidateWorkflow(wf *workflow.Workflow) error {
	if wf == nil {
		return &errors.ValidationError{
			Field:   "workflow",
			Message: "workflow is nil",
		}
	}
	for i, step := range wf.Steps {
		if step == nil {
			continue
		}
		if !t.Has(step.Service, step.Action) {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d]", i),
				Message:    fmt.Sprintf("no handler registered for %s.%s", step.Service, step.Action),
				Suggestion: "Register the (service, action) pair on the dispatch table before executing",
			}
		}
	}
	return nil
}
