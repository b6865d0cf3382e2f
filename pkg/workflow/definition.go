package workflow

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/maestro/pkg/errors"
)

// Workflow is a registered, named, versioned, acyclic graph of steps.
// Definitions are immutable after registration: the registry stores and
// hands out deep copies, so callers can never mutate a live definition.
type Workflow struct {
	// ID uniquely identifies the workflow in the registry
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable workflow name
	Name string `yaml:"name" json:"name"`

	// Description explains what the workflow does
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version is the semantic version of this definition
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Steps is the ordered step list; the first step is the entry point
	Steps []*Step `yaml:"steps" json:"steps"`

	// Triggers optionally gate or describe how executions start
	Triggers []Trigger `yaml:"triggers,omitempty" json:"triggers,omitempty"`

	// ErrorPolicy sets the default action for step failures without an
	// on_failure transition
	ErrorPolicy *ErrorPolicy `yaml:"error_policy,omitempty" json:"error_policy,omitempty"`

	// Timeout bounds a whole execution; zero means the engine default
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Metadata carries free-form annotations
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Step declares one invocation of a (service, action) pair with guards,
// transitions, retries, and optional caching.
type Step struct {
	// ID uniquely identifies the step within its workflow
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable step name
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Service is the downstream service to invoke
	Service string `yaml:"service" json:"service"`

	// Action is the action to invoke on the service
	Action string `yaml:"action" json:"action"`

	// Input declares how the step's effective input is assembled
	Input InputSpec `yaml:"input,omitempty" json:"input,omitempty"`

	// Conditions guard execution; all-false means the step is skipped
	Conditions []Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	// OnSuccess is the next step id after completion (empty terminates)
	OnSuccess string `yaml:"on_success,omitempty" json:"on_success,omitempty"`

	// OnFailure is the next step id after failure (empty defers to the
	// workflow error policy)
	OnFailure string `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`

	// Parallel lists sibling step ids executed concurrently with this
	// step; results merge at this step's id
	Parallel []string `yaml:"parallel,omitempty" json:"parallel,omitempty"`

	// Retry drives repeated dispatch attempts; nil means a single attempt
	Retry *RetrySpec `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Timeout bounds a single execution of this step; the effective
	// deadline is min(Timeout, remaining workflow budget)
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Cache memoizes successful outputs
	Cache *CacheSpec `yaml:"cache,omitempty" json:"cache,omitempty"`
}

// InputSpec assembles a step's effective input. Precedence on key
// collision: static < from_context < from_step < well-known context fields
// (userId, sessionId, organizationId).
type InputSpec struct {
	// Static is the literal base map
	Static map[string]any `yaml:"static,omitempty" json:"static,omitempty"`

	// FromContext copies the named top-level workflow input value under
	// the same key
	FromContext string `yaml:"from_context,omitempty" json:"from_context,omitempty"`

	// FromStep shallow-merges the referenced step's map output; non-map
	// outputs land under the referenced step's id
	FromStep string `yaml:"from_step,omitempty" json:"from_step,omitempty"`
}

// Operator is a fixed comparison operator in a step condition.
type Operator string

// Condition operators. There is deliberately no expression language beyond
// these and the dotted-path field reader.
const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "notExists"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
)

// Connector joins the running condition accumulator with the next
// condition in the list.
type Connector string

// Condition connectors. Evaluation is strictly left to right with no
// precedence.
const (
	ConnectorAnd Connector = "and"
	ConnectorOr  Connector = "or"
)

// Condition is one (field path, operator, value) triple. Field paths start
// with "input.", "step.<id>.", or "variables."; anything else is undefined.
type Condition struct {
	// Field is the dotted path read from the execution context
	Field string `yaml:"field" json:"field"`

	// Op is the comparison operator
	Op Operator `yaml:"operator" json:"operator"`

	// Value is the right-hand side; unused by exists/notExists
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	// Connector joins the accumulator with the NEXT condition ("and"
	// when empty)
	Connector Connector `yaml:"connector,omitempty" json:"connector,omitempty"`
}

// TriggerType names how an execution may be started or gated.
type TriggerType string

// Trigger types.
const (
	// TriggerFeatureFlag gates every execution on a feature flag key.
	TriggerFeatureFlag TriggerType = "featureFlag"

	// TriggerManual marks a workflow as caller-initiated only.
	TriggerManual TriggerType = "manual"
)

// Trigger describes how executions of a workflow start. The engine acts on
// featureFlag triggers; other types are annotations for collaborators.
type Trigger struct {
	// Type is the trigger type
	Type TriggerType `yaml:"type" json:"type"`

	// Key is the feature-flag key for featureFlag triggers
	Key string `yaml:"key,omitempty" json:"key,omitempty"`

	// Metadata carries trigger-specific annotations
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ErrorAction is the workflow-level default handling for step failures.
type ErrorAction string

// Error actions.
const (
	// ErrorActionFail stops the walk and fails the workflow.
	ErrorActionFail ErrorAction = "fail"

	// ErrorActionSkip follows on_success as if the step had completed.
	ErrorActionSkip ErrorAction = "skip"
)

// ErrorPolicy is the workflow-level failure policy, applied when a failed
// step has no on_failure transition.
type ErrorPolicy struct {
	// Action is the default error action ("fail" when unset)
	Action ErrorAction `yaml:"action" json:"action"`
}

// RetrySpec drives the per-step attempt loop.
type RetrySpec struct {
	// MaxAttempts caps total dispatches, first attempt included
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialDelay is the sleep before the second attempt
	InitialDelay Duration `yaml:"initial_delay,omitempty" json:"initial_delay,omitempty"`

	// Multiplier scales the delay geometrically between attempts
	Multiplier float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`

	// RetryableErrors whitelists error codes that may retry. Empty means
	// any transient error retries; timeouts retry only when STEP_TIMEOUT
	// is listed explicitly.
	RetryableErrors []string `yaml:"retryable_errors,omitempty" json:"retryable_errors,omitempty"`
}

// CacheSpec memoizes successful step outputs under
// "<key_prefix>:<step_id>:<user_or_anonymous>:<workflow_id>".
type CacheSpec struct {
	// Enabled turns caching on for the step
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TTL is the entry lifetime, enforced by the backend
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// KeyPrefix namespaces the key (DefaultCacheKeyPrefix when empty)
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// Defaults applied by ApplyDefaults.
const (
	// DefaultRetryMaxAttempts is used when a retry spec sets no cap.
	DefaultRetryMaxAttempts = 2

	// DefaultRetryInitialDelay is used when a retry spec sets no delay.
	DefaultRetryInitialDelay = Duration(time.Second)

	// DefaultRetryMultiplier is used when a retry spec sets no multiplier.
	DefaultRetryMultiplier = 2.0

	// DefaultCacheTTL is used when an enabled cache spec sets no TTL.
	DefaultCacheTTL = Duration(5 * time.Minute)

	// DefaultWorkflowTimeout bounds executions of workflows that declare
	// no timeout of their own.
	DefaultWorkflowTimeout = 30 * time.Second
)

// ParseDefinition parses a YAML workflow definition, fills step ids and
// defaults, and validates the result.
func ParseDefinition(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, &errors.ValidationError{
			Message:    fmt.Sprintf("invalid YAML: %v", err),
			Suggestion: "Check YAML syntax and indentation",
		}
	}

	wf.autoFillStepIDs()
	wf.ApplyDefaults()

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// autoFillStepIDs derives ids for steps that declare none, from the step
// name when present, positionally otherwise. Collisions are left for
// Validate to report.
func (w *Workflow) autoFillStepIDs() {
	for i, step := range w.Steps {
		if step == nil || step.ID != "" {
			continue
		}
		if step.Name != "" {
			step.ID = slugify(step.Name)
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
	}
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// ApplyDefaults fills derivable fields: workflow id from the name, retry
// caps and backoff, cache TTL and key prefix.
func (w *Workflow) ApplyDefaults() {
	if w.ID == "" && w.Name != "" {
		w.ID = slugify(w.Name)
	}
	for _, step := range w.Steps {
		if step == nil {
			continue
		}
		if step.Retry != nil {
			if step.Retry.MaxAttempts == 0 {
				step.Retry.MaxAttempts = DefaultRetryMaxAttempts
			}
			if step.Retry.InitialDelay == 0 {
				step.Retry.InitialDelay = DefaultRetryInitialDelay
			}
			if step.Retry.Multiplier == 0 {
				step.Retry.Multiplier = DefaultRetryMultiplier
			}
		}
		if step.Cache != nil && step.Cache.Enabled {
			if step.Cache.TTL == 0 {
				step.Cache.TTL = DefaultCacheTTL
			}
			if step.Cache.KeyPrefix == "" {
				step.Cache.KeyPrefix = DefaultCacheKeyPrefix
			}
		}
	}
}

// Validate checks the workflow's structural invariants: identity, unique
// step ids, reference integrity of transitions and parallel lists, retry
// and cache bounds, condition well-formedness, trigger shape, and
// acyclicity of the transition graph.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return &errors.ValidationError{
			Field:      "id",
			Message:    "workflow id is required",
			Suggestion: "Set id, or name so an id can be derived",
		}
	}
	if w.Name == "" {
		return &errors.ValidationError{
			Field:      "name",
			Message:    "workflow name is required",
			Suggestion: "Set a human-readable name",
		}
	}
	if len(w.Steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "workflow has no steps",
			Suggestion: "Declare at least one step; the first is the entry point",
		}
	}
	if w.Timeout < 0 {
		return &errors.ValidationError{
			Field:   "timeout",
			Message: "timeout must not be negative",
		}
	}
	if w.ErrorPolicy != nil {
		switch w.ErrorPolicy.Action {
		case "", ErrorActionFail, ErrorActionSkip:
		default:
			return &errors.ValidationError{
				Field:      "error_policy.action",
				Message:    fmt.Sprintf("unknown error action %q", w.ErrorPolicy.Action),
				Suggestion: `Use "fail" or "skip"`,
			}
		}
	}

	ids := make(map[string]int, len(w.Steps))
	for i, step := range w.Steps {
		if step == nil {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d]", i),
				Message: "step is null",
			}
		}
		if step.ID == "" {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].id", i),
				Message:    "step id is required",
				Suggestion: "Set an id or a name it can be derived from",
			}
		}
		if prev, dup := ids[step.ID]; dup {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].id", i),
				Message:    fmt.Sprintf("duplicate step id %q (first used by steps[%d])", step.ID, prev),
				Suggestion: "Give every step a unique id",
			}
		}
		ids[step.ID] = i
	}

	for i, step := range w.Steps {
		if err := w.validateStep(i, step, ids); err != nil {
			return err
		}
	}

	for j, trig := range w.Triggers {
		if trig.Type == TriggerFeatureFlag && trig.Key == "" {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("triggers[%d].key", j),
				Message:    "featureFlag triggers require a key",
				Suggestion: "Set the feature-flag key to evaluate",
			}
		}
	}

	return w.validateAcyclic()
}

func (w *Workflow) validateStep(i int, step *Step, ids map[string]int) error {
	field := func(name string) string { return fmt.Sprintf("steps[%d].%s", i, name) }

	if step.Service == "" {
		return &errors.ValidationError{
			Field:      field("service"),
			Message:    "service is required",
			Suggestion: "Name the downstream service this step invokes",
		}
	}
	if step.Action == "" {
		return &errors.ValidationError{
			Field:      field("action"),
			Message:    "action is required",
			Suggestion: "Name the action to invoke on the service",
		}
	}
	if step.Timeout < 0 {
		return &errors.ValidationError{
			Field:   field("timeout"),
			Message: "timeout must not be negative",
		}
	}

	if step.OnSuccess != "" {
		if _, ok := ids[step.OnSuccess]; !ok {
			return &errors.ValidationError{
				Field:      field("on_success"),
				Message:    fmt.Sprintf("references unknown step id %q", step.OnSuccess),
				Suggestion: "Transitions must target an existing step id",
			}
		}
	}
	if step.OnFailure != "" {
		if _, ok := ids[step.OnFailure]; !ok {
			return &errors.ValidationError{
				Field:      field("on_failure"),
				Message:    fmt.Sprintf("references unknown step id %q", step.OnFailure),
				Suggestion: "Transitions must target an existing step id",
			}
		}
	}

	seen := make(map[string]bool, len(step.Parallel))
	for _, sib := range step.Parallel {
		if _, ok := ids[sib]; !ok {
			return &errors.ValidationError{
				Field:      field("parallel"),
				Message:    fmt.Sprintf("references unknown step id %q", sib),
				Suggestion: "Parallel siblings must be existing step ids",
			}
		}
		if sib == step.ID {
			return &errors.ValidationError{
				Field:   field("parallel"),
				Message: "a step cannot list itself as a parallel sibling",
			}
		}
		if sib == step.OnSuccess || sib == step.OnFailure {
			return &errors.ValidationError{
				Field:      field("parallel"),
				Message:    fmt.Sprintf("step id %q is both a sibling and a transition target", sib),
				Suggestion: "Parallel siblings must be disjoint from on_success/on_failure",
			}
		}
		if seen[sib] {
			return &errors.ValidationError{
				Field:   field("parallel"),
				Message: fmt.Sprintf("duplicate sibling %q", sib),
			}
		}
		seen[sib] = true
	}

	if step.Retry != nil {
		if step.Retry.MaxAttempts < 1 {
			return &errors.ValidationError{
				Field:      field("retry.max_attempts"),
				Message:    "max_attempts must be at least 1",
				Suggestion: "Remove the retry spec for a single attempt",
			}
		}
		if step.Retry.InitialDelay < 0 {
			return &errors.ValidationError{
				Field:   field("retry.initial_delay"),
				Message: "initial_delay must not be negative",
			}
		}
		if step.Retry.Multiplier < 0 {
			return &errors.ValidationError{
				Field:   field("retry.multiplier"),
				Message: "multiplier must not be negative",
			}
		}
	}

	if step.Cache != nil && step.Cache.Enabled && step.Cache.TTL <= 0 {
		return &errors.ValidationError{
			Field:      field("cache.ttl"),
			Message:    "ttl must be positive when caching is enabled",
			Suggestion: `Set a ttl such as "5m"`,
		}
	}

	for j, cond := range step.Conditions {
		if err := validateCondition(fmt.Sprintf("steps[%d].conditions[%d]", i, j), cond); err != nil {
			return err
		}
	}

	return nil
}

func validateCondition(field string, cond Condition) error {
	if cond.Field == "" {
		return &errors.ValidationError{
			Field:      field + ".field",
			Message:    "condition field path is required",
			Suggestion: `Use a path such as "step.fetch-cart.isAbandoned"`,
		}
	}
	switch cond.Op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains,
		OpGreaterThan, OpLessThan, OpExists, OpNotExists:
	case OpIn, OpNotIn:
		if cond.Value == nil || reflect.ValueOf(cond.Value).Kind() != reflect.Slice {
			return &errors.ValidationError{
				Field:      field + ".value",
				Message:    fmt.Sprintf("%s requires a list value", cond.Op),
				Suggestion: "Provide the right-hand side as a YAML sequence",
			}
		}
	default:
		return &errors.ValidationError{
			Field:      field + ".operator",
			Message:    fmt.Sprintf("unknown operator %q", cond.Op),
			Suggestion: "Use one of the fixed comparison operators",
		}
	}
	switch cond.Connector {
	case "", ConnectorAnd, ConnectorOr:
	default:
		return &errors.ValidationError{
			Field:      field + ".connector",
			Message:    fmt.Sprintf("unknown connector %q", cond.Connector),
			Suggestion: `Use "and" or "or"`,
		}
	}
	return nil
}

// validateAcyclic rejects cycles in the on_success/on_failure graph.
// Parallel sibling lists are not walk edges and may overlap freely.
func (w *Workflow) validateAcyclic() error {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(w.Steps))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch state[id] {
		case done:
			return nil
		case inStack:
			return &errors.ValidationError{
				Field:      "steps",
				Message:    fmt.Sprintf("transition cycle detected: %s", strings.Join(append(path, id), " -> ")),
				Suggestion: "Workflow graphs must be acyclic",
			}
		}
		state[id] = inStack
		step := w.findStep(id)
		for _, next := range []string{step.OnSuccess, step.OnFailure} {
			if next == "" {
				continue
			}
			if err := visit(next, append(path, id)); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, step := range w.Steps {
		if err := visit(step.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// findStep returns the step with the given id, nil when absent.
func (w *Workflow) findStep(id string) *Step {
	for _, step := range w.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// errorAction returns the effective default error action.
func (w *Workflow) errorAction() ErrorAction {
	if w.ErrorPolicy == nil || w.ErrorPolicy.Action == "" {
		return ErrorActionFail
	}
	return w.ErrorPolicy.Action
}

// flagTrigger returns the first featureFlag trigger, nil when the workflow
// declares none.
func (w *Workflow) flagTrigger() *Trigger {
	for i := range w.Triggers {
		if w.Triggers[i].Type == TriggerFeatureFlag {
			return &w.Triggers[i]
		}
	}
	return nil
}

// clone deep-copies the workflow so registry reads never alias stored
// definitions.
func (w *Workflow) clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Metadata = copyStringMap(w.Metadata)
	if w.Triggers != nil {
		out.Triggers = make([]Trigger, len(w.Triggers))
		for i, t := range w.Triggers {
			out.Triggers[i] = t
			out.Triggers[i].Metadata = copyStringMap(t.Metadata)
		}
	}
	if w.ErrorPolicy != nil {
		policy := *w.ErrorPolicy
		out.ErrorPolicy = &policy
	}
	if w.Steps != nil {
		out.Steps = make([]*Step, len(w.Steps))
		for i, s := range w.Steps {
			out.Steps[i] = s.clone()
		}
	}
	return &out
}

func (s *Step) clone() *Step {
	if s == nil {
		return nil
	}
	out := *s
	out.Input.Static = copyMapDeep(s.Input.Static)
	if s.Conditions != nil {
		out.Conditions = make([]Condition, len(s.Conditions))
		for i, c := range s.Conditions {
			out.Conditions[i] = c
			out.Conditions[i].Value = copyValueDeep(c.Value)
		}
	}
	if s.Parallel != nil {
		out.Parallel = append([]string(nil), s.Parallel...)
	}
	if s.Retry != nil {
		retry := *s.Retry
		retry.RetryableErrors = append([]string(nil), s.Retry.RetryableErrors...)
		out.Retry = &retry
	}
	if s.Cache != nil {
		cache := *s.Cache
		out.Cache = &cache
	}
	return &out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
