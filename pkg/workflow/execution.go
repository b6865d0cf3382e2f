package workflow

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Well-known execution context fields. When present on the execution they
// are injected into every resolved step input, winning all collisions.
const (
	FieldUserID         = "userId"
	FieldSessionID      = "sessionId"
	FieldOrganizationID = "organizationId"
)

// Execution is the per-run bag of inputs, step results, and variables. It
// is created by the orchestrator at start, written to only by the
// interpreter and the step executor, and removed from the live registry
// once the terminal state is recorded.
//
// Reads and writes are guarded internally: the interpreter is the single
// driver, but parallel siblings record their own results concurrently.
type Execution struct {
	// WorkflowID identifies the workflow being executed
	WorkflowID string

	// ID uniquely identifies this execution
	ID string

	// StartedAt is when the execution was created
	StartedAt time.Time

	// UserID, SessionID, and OrganizationID are the well-known identity
	// fields, empty when the caller supplied none
	UserID         string
	SessionID      string
	OrganizationID string

	// Input is the original workflow input object
	Input map[string]any

	// Variables is a mutable scratch map addressable from conditions via
	// the "variables." path prefix
	Variables map[string]any

	// Metadata carries free-form annotations such as the priority tag
	Metadata map[string]string

	mu      sync.RWMutex
	results map[string]*StepResult
	order   []string
}

// NewExecution creates an execution context for the given workflow. The
// well-known identity fields are lifted from the input when present.
func NewExecution(workflowID string, input map[string]any, clock Clock) *Execution {
	if clock == nil {
		clock = SystemClock{}
	}
	e := &Execution{
		WorkflowID: workflowID,
		ID:         uuid.NewString(),
		StartedAt:  clock.Now(),
		Input:      copyMapDeep(input),
		Variables:  make(map[string]any),
		Metadata:   make(map[string]string),
		results:    make(map[string]*StepResult),
	}
	if e.Input == nil {
		e.Input = make(map[string]any)
	}
	e.UserID = e.inputString(FieldUserID)
	e.SessionID = e.inputString(FieldSessionID)
	e.OrganizationID = e.inputString(FieldOrganizationID)
	return e
}

func (e *Execution) inputString(key string) string {
	s, _ := e.Input[key].(string)
	return s
}

// recordResult stores a step result under its step id. Re-recording an id
// (the parallel merge overwriting the head's slot) keeps the original
// position in the insertion order.
func (e *Execution) recordResult(res *StepResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, seen := e.results[res.StepID]; !seen {
		e.order = append(e.order, res.StepID)
	}
	e.results[res.StepID] = res
}

// stepResult returns the recorded result for a step id.
func (e *Execution) stepResult(id string) (*StepResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res, ok := e.results[id]
	return res, ok
}

// stepOutput returns the output of a completed step. Skipped, failed, and
// unrecorded steps yield nothing.
func (e *Execution) stepOutput(id string) (any, bool) {
	res, ok := e.stepResult(id)
	if !ok || res.Status != StepStatusCompleted {
		return nil, false
	}
	return res.Output, true
}

// Results returns deep copies of the recorded step results in insertion
// order.
func (e *Execution) Results() []StepResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]StepResult, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.results[id].clone())
	}
	return out
}

// resolveField reads a dotted path from the execution context. Paths start
// with "input.", "step.<id>.", or "variables."; anything else is undefined.
// "step.<id>" with no trailing path resolves to the step's whole output.
func (e *Execution) resolveField(path string) (any, bool) {
	switch {
	case strings.HasPrefix(path, pathPrefixInput):
		e.mu.RLock()
		defer e.mu.RUnlock()
		return lookupPath(e.Input, path[len(pathPrefixInput):])

	case strings.HasPrefix(path, pathPrefixVariables):
		e.mu.RLock()
		defer e.mu.RUnlock()
		return lookupPath(e.Variables, path[len(pathPrefixVariables):])

	case strings.HasPrefix(path, pathPrefixStep):
		rest := path[len(pathPrefixStep):]
		id, tail, _ := strings.Cut(rest, ".")
		if id == "" {
			return nil, false
		}
		output, ok := e.stepOutput(id)
		if !ok {
			return nil, false
		}
		if tail == "" {
			return output, true
		}
		m, ok := output.(map[string]any)
		if !ok {
			return nil, false
		}
		return lookupPath(m, tail)

	default:
		return nil, false
	}
}

// GetString retrieves a string value from the workflow input.
func (e *Execution) GetString(key string) (string, error) {
	val, ok := e.Input[key]
	if !ok {
		return "", fmt.Errorf("input key %q not found", key)
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("input key %q is %T, not string", key, val)
	}
	return s, nil
}

// GetStringOr returns a string input value or the default when the key is
// missing or has the wrong type.
func (e *Execution) GetStringOr(key, defaultVal string) string {
	s, err := e.GetString(key)
	if err != nil {
		return defaultVal
	}
	return s
}

// GetBool retrieves a bool value from the workflow input.
func (e *Execution) GetBool(key string) (bool, error) {
	val, ok := e.Input[key]
	if !ok {
		return false, fmt.Errorf("input key %q not found", key)
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("input key %q is %T, not bool", key, val)
	}
	return b, nil
}

// GetBoolOr returns a bool input value or the default when the key is
// missing or has the wrong type.
func (e *Execution) GetBoolOr(key string, defaultVal bool) bool {
	b, err := e.GetBool(key)
	if err != nil {
		return defaultVal
	}
	return b
}

// GetFloat64 retrieves a numeric value from the workflow input. Integer
// and float types decoded from YAML or JSON are all accepted.
func (e *Execution) GetFloat64(key string) (float64, error) {
	val, ok := e.Input[key]
	if !ok {
		return 0, fmt.Errorf("input key %q not found", key)
	}
	f, ok := toFloat(val)
	if !ok {
		return 0, fmt.Errorf("input key %q is %T, not a number", key, val)
	}
	return f, nil
}

// GetFloat64Or returns a numeric input value or the default when the key
// is missing or not a number.
func (e *Execution) GetFloat64Or(key string, defaultVal float64) float64 {
	f, err := e.GetFloat64(key)
	if err != nil {
		return defaultVal
	}
	return f
}

// ExecutionSnapshot is an immutable deep copy of execution state for
// status queries. It aliases none of the live execution's maps or slices.
type ExecutionSnapshot struct {
	WorkflowID     string            `json:"workflow_id" yaml:"workflow_id"`
	ExecutionID    string            `json:"execution_id" yaml:"execution_id"`
	Status         Status            `json:"status" yaml:"status"`
	StartedAt      time.Time         `json:"started_at" yaml:"started_at"`
	UserID         string            `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	SessionID      string            `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	OrganizationID string            `json:"organization_id,omitempty" yaml:"organization_id,omitempty"`
	Input          map[string]any    `json:"input,omitempty" yaml:"input,omitempty"`
	Steps          []StepResult      `json:"steps" yaml:"steps"`
	Variables      map[string]any    `json:"variables,omitempty" yaml:"variables,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Snapshot captures the execution's current state. Executions visible in
// the live registry are by definition still running.
func (e *Execution) Snapshot() *ExecutionSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := &ExecutionSnapshot{
		WorkflowID:     e.WorkflowID,
		ExecutionID:    e.ID,
		Status:         StatusRunning,
		StartedAt:      e.StartedAt,
		UserID:         e.UserID,
		SessionID:      e.SessionID,
		OrganizationID: e.OrganizationID,
		Input:          copyMapDeep(e.Input),
		Variables:      copyMapDeep(e.Variables),
		Metadata:       copyStringMap(e.Metadata),
		Steps:          make([]StepResult, 0, len(e.order)),
	}
	for _, id := range e.order {
		snap.Steps = append(snap.Steps, e.results[id].clone())
	}
	return snap
}
