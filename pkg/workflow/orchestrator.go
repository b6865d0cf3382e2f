// Package workflow implements the maestro workflow orchestration engine.
//
// A workflow is a registered, named, versioned, acyclic graph of steps;
// each step invokes a named action on a named downstream service through
// the ServiceDispatcher interface. The engine resolves step inputs from
// prior outputs or the workflow input, evaluates guard conditions, runs
// steps sequentially or in parallel fan-outs, applies per-step retry
// policies with exponential backoff, consults a cache for memoizable
// results, enforces per-step and per-workflow timeouts, and produces a
// deterministic, inspectable execution record.
//
// The engine consumes four narrow collaborator interfaces —
// ServiceDispatcher, FlagEvaluator, Cache, and Clock — and publishes a
// small programmatic surface on the Orchestrator. Executions live in
// memory only; there is no durable state and no distributed coordination.
package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/maestro/pkg/errors"
)

// Orchestrator is the engine façade. Construct one per process (or per
// test) with New; there are no package-level singletons. All entry points
// are safe for concurrent use.
type Orchestrator struct {
	registry   *Registry
	executions *executionRegistry
	executor   *stepExecutor

	flags          FlagEvaluator
	clock          Clock
	logger         *slog.Logger
	metrics        MetricsCollector
	tracer         trace.Tracer
	defaultTimeout time.Duration
	sem            chan struct{}

	closed atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	flags          FlagEvaluator
	cache          Cache
	clock          Clock
	logger         *slog.Logger
	metrics        MetricsCollector
	tracer         trace.Tracer
	defaultTimeout time.Duration
	maxParallel    int
	seedTemplates  bool
}

// WithFlagEvaluator sets the feature-flag gate consulted by workflows
// declaring a featureFlag trigger. Without one, gated workflows run.
func WithFlagEvaluator(f FlagEvaluator) Option {
	return func(o *options) { o.flags = f }
}

// WithCache sets the cache backend used by steps with caching enabled.
// Without one, cache specs are inert.
func WithCache(c Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithClock sets the time source. Defaults to the system clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector. Defaults to a no-op.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer enables workflow.execute and workflow.step spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithDefaultTimeout sets the execution timeout applied when neither the
// workflow nor the caller's options declare one. Defaults to 30s.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithParallelConcurrency bounds the number of concurrently running
// parallel-group tasks across the orchestrator. Zero means unbounded.
func WithParallelConcurrency(n int) Option {
	return func(o *options) { o.maxParallel = n }
}

// WithoutTemplates skips seeding the built-in workflow templates.
func WithoutTemplates() Option {
	return func(o *options) { o.seedTemplates = false }
}

// New constructs an orchestrator around the given dispatcher. The
// dispatcher is the one mandatory collaborator; New panics without it.
func New(dispatcher ServiceDispatcher, opts ...Option) *Orchestrator {
	if dispatcher == nil {
		panic("workflow: New requires a ServiceDispatcher")
	}
	cfg := options{
		clock:          SystemClock{},
		logger:         slog.Default(),
		metrics:        noopMetrics{},
		defaultTimeout: DefaultWorkflowTimeout,
		seedTemplates:  true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Orchestrator{
		registry:       newRegistry(cfg.logger, cfg.seedTemplates),
		executions:     newExecutionRegistry(),
		flags:          cfg.flags,
		clock:          cfg.clock,
		logger:         cfg.logger,
		metrics:        cfg.metrics,
		tracer:         cfg.tracer,
		defaultTimeout: cfg.defaultTimeout,
	}
	if cfg.maxParallel > 0 {
		o.sem = make(chan struct{}, cfg.maxParallel)
	}
	o.executor = &stepExecutor{
		dispatcher: dispatcher,
		cache:      cfg.cache,
		clock:      cfg.clock,
		logger:     cfg.logger,
		metrics:    cfg.metrics,
		tracer:     cfg.tracer,
	}
	return o
}

// ExecuteOptions tunes a single execution.
type ExecuteOptions struct {
	// Timeout overrides the workflow-level timeout for this execution
	Timeout time.Duration

	// DryRun walks the graph and evaluates conditions without dispatching;
	// every would-be-executed step completes synthetically with nil output
	DryRun bool

	// Priority is an opaque hint forwarded to handlers via the dispatch
	// context and recorded in the execution metadata
	Priority string

	// Async returns as soon as the execution is registered; completion is
	// observed via ExecutionStatus, which reports nothing once terminal
	Async bool

	// FeatureFlagContext is passed verbatim to the flag evaluator
	FeatureFlagContext map[string]any
}

// ExecuteWorkflow runs a registered workflow by id. The effective timeout
// is the first of: options timeout, workflow timeout, orchestrator
// default. A workflow gated off by its feature flag returns a cancelled
// Result carrying the WORKFLOW_SKIPPED code with zero step results, and no
// Go error.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, id string, input map[string]any, opts *ExecuteOptions) (*Result, error) {
	if opts == nil {
		opts = &ExecuteOptions{}
	}
	if o.closed.Load() {
		return nil, &errors.CancelledError{Reason: "orchestrator is closed"}
	}

	wf, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}

	exec := NewExecution(wf.ID, input, o.clock)
	if opts.Priority != "" {
		exec.Metadata["priority"] = opts.Priority
	}

	if trig := wf.flagTrigger(); trig != nil && o.flags != nil {
		if !o.flags.Enabled(trig.Key, opts.FeatureFlagContext) {
			o.logger.Info("workflow gated off by feature flag",
				"workflow", wf.ID,
				"execution_id", exec.ID,
				"flag", trig.Key,
			)
			now := o.clock.Now()
			return &Result{
				WorkflowID:  wf.ID,
				ExecutionID: exec.ID,
				Status:      StatusCancelled,
				Error:       errors.Record(&errors.GatedError{Flag: trig.Key}),
				StartedAt:   exec.StartedAt,
				CompletedAt: now,
				Duration:    now.Sub(exec.StartedAt),
				Steps:       []StepResult{},
			}, nil
		}
	}

	timeout := o.effectiveTimeout(wf, opts)
	o.executions.add(exec)
	o.metrics.ExecutionStarted(ctx, wf.ID, exec.ID)

	if opts.Async {
		// Async executions outlive the caller's context; only the
		// workflow timeout and Close drain them.
		runCtx := context.WithoutCancel(ctx)
		go func() {
			defer o.executions.remove(exec.ID)
			o.execute(runCtx, wf, exec, timeout, opts)
		}()
		return &Result{
			WorkflowID:  wf.ID,
			ExecutionID: exec.ID,
			Status:      StatusRunning,
			StartedAt:   exec.StartedAt,
		}, nil
	}

	defer o.executions.remove(exec.ID)
	return o.execute(ctx, wf, exec, timeout, opts), nil
}

// execute drives one registered execution to its terminal state.
func (o *Orchestrator) execute(ctx context.Context, wf *Workflow, exec *Execution, timeout time.Duration, opts *ExecuteOptions) *Result {
	ctx = WithPriority(ctx, opts.Priority)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("workflow.execution_id", exec.ID),
		))
	}

	o.logger.Debug("starting workflow execution",
		"workflow", wf.ID,
		"execution_id", exec.ID,
		"timeout", timeout,
		"dry_run", opts.DryRun,
	)

	in := &interpreter{executor: o.executor, sem: o.sem}
	result := in.run(ctx, wf, exec, opts.DryRun)

	o.metrics.ExecutionCompleted(ctx, wf.ID, exec.ID, result.Status, result.Duration)
	if span != nil {
		span.SetAttributes(attribute.String("workflow.status", string(result.Status)))
		span.End()
	}
	o.logger.Info("workflow execution finished",
		"workflow", wf.ID,
		"execution_id", exec.ID,
		"status", result.Status,
		"steps", len(result.Steps),
		"duration", result.Duration,
	)
	return result
}

func (o *Orchestrator) effectiveTimeout(wf *Workflow, opts *ExecuteOptions) time.Duration {
	switch {
	case opts.Timeout > 0:
		return opts.Timeout
	case wf.Timeout > 0:
		return wf.Timeout.Std()
	default:
		return o.defaultTimeout
	}
}

// ChainStep is one link of an ad-hoc sequential composition.
type ChainStep struct {
	// Service and Action identify the handler to invoke
	Service string
	Action  string

	// Transform optionally maps this step's output before it feeds the
	// next step (identity when nil)
	Transform func(output map[string]any) map[string]any
}

// Chain invokes the given steps sequentially, feeding each step's output
// to the next as input. No conditions, retries, or caching apply; the
// first error propagates directly to the caller.
func (o *Orchestrator) Chain(ctx context.Context, steps []ChainStep, initialInput map[string]any) (map[string]any, error) {
	current := initialInput
	for i, step := range steps {
		if step.Service == "" || step.Action == "" {
			return nil, &errors.ValidationError{
				Field:   "steps",
				Message: "chain steps require a service and an action",
			}
		}
		output, err := o.executor.dispatcher.Invoke(ctx, step.Service, step.Action, current)
		if err != nil {
			return nil, errors.Wrapf(err, "chain step %d (%s.%s)", i, step.Service, step.Action)
		}
		if step.Transform != nil {
			output = step.Transform(output)
		}
		current = output
	}
	return current, nil
}

// Task is one member of an ad-hoc parallel fan-out.
type Task struct {
	Service string
	Action  string
	Input   map[string]any
}

// Parallel invokes every task concurrently and returns their outputs in
// task order. Completion is best-effort: all tasks are awaited even after
// a failure, and the first error by task index is returned.
func (o *Orchestrator) Parallel(ctx context.Context, tasks []Task) ([]map[string]any, error) {
	outputs := make([]map[string]any, len(tasks))
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			if task.Service == "" || task.Action == "" {
				errs[i] = &errors.ValidationError{
					Field:   "tasks",
					Message: "parallel tasks require a service and an action",
				}
				return
			}
			outputs[i], errs[i] = o.executor.dispatcher.Invoke(ctx, task.Service, task.Action, task.Input)
		}(i, task)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return outputs, errors.Wrapf(err, "parallel task %d (%s.%s)", i, tasks[i].Service, tasks[i].Action)
		}
	}
	return outputs, nil
}

// Register validates and stores a workflow definition, replacing any prior
// definition with the same id (logged as a warning, never an error).
func (o *Orchestrator) Register(wf *Workflow) (replaced bool, err error) {
	return o.registry.Register(wf)
}

// ListWorkflows returns copies of every registered workflow definition.
func (o *Orchestrator) ListWorkflows() []*Workflow {
	return o.registry.List()
}

// ExecutionStatus returns a deep-copied snapshot of an in-flight
// execution, or nil once the execution has reached a terminal state.
func (o *Orchestrator) ExecutionStatus(executionID string) *ExecutionSnapshot {
	return o.executions.snapshot(executionID)
}

// Executions returns snapshots of every in-flight execution, oldest first.
func (o *Orchestrator) Executions() []*ExecutionSnapshot {
	return o.executions.snapshotAll()
}

// InFlight returns the number of live executions.
func (o *Orchestrator) InFlight() int {
	return o.executions.count()
}

// Close stops accepting new executions and waits for in-flight ones to
// finish, or for ctx to expire.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.closed.Store(true)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.executions.count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
