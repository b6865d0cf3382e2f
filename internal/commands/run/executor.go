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

package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/maestro/internal/cli/timeline"
	"github.com/tombee/maestro/internal/commands/shared"
	"github.com/tombee/maestro/internal/config"
	"github.com/tombee/maestro/internal/log"
	"github.com/tombee/maestro/internal/output"
	"github.com/tombee/maestro/internal/stub"
	"github.com/tombee/maestro/internal/telemetry"
	"github.com/tombee/maestro/pkg/cache"
	"github.com/tombee/maestro/pkg/dispatch"
	pkgerrors "github.com/tombee/maestro/pkg/errors"
	"github.com/tombee/maestro/pkg/flags"
	"github.com/tombee/maestro/pkg/workflow"
)

// runWorkflow loads configuration, builds the shared run environment, and
// executes the workflow once or in a watch loop.
func runWorkflow(cmd *cobra.Command, path string, opts *runOptions) error {
	cfg, err := config.Load(config.Discover(shared.GetConfigPath()))
	if err != nil {
		return shared.NewConfigError("failed to load configuration", err)
	}

	logger := newRunLogger(cfg)

	inputs, err := parseInputs(opts.inputs, opts.inputFile, opts.sets)
	if err != nil {
		return shared.NewMissingInputError("failed to parse inputs", err)
	}

	if opts.bindings == "" && !opts.dryRun {
		return shared.NewConfigError("service bindings required", &pkgerrors.ValidationError{
			Field:      "bindings",
			Message:    "runs dispatch against stub bindings and none were provided",
			Suggestion: "Pass --bindings <file>, or use --dry-run to walk the graph without dispatching",
		})
	}

	env, err := newRunEnv(cfg, logger, opts)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := func(ctx context.Context) error {
		return executeOnce(ctx, cmd, path, inputs, env, opts)
	}

	if opts.watch {
		return watchAndRun(ctx, cmd, watchTargets(path, opts.bindings), logger, exec)
	}
	return exec(ctx)
}

// newRunLogger builds the run logger from config, with the global
// --log-level and --log-format flags taking precedence.
func newRunLogger(cfg *config.Config) *slog.Logger {
	logCfg := log.FromEnv()
	if cfg.Log.Level != "" {
		logCfg.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		logCfg.Format = log.Format(cfg.Log.Format)
	}
	logCfg.AddSource = cfg.Log.AddSource
	if lvl := shared.GetLogLevel(); lvl != "" {
		logCfg.Level = lvl
	}
	if format := shared.GetLogFormat(); format != "" {
		logCfg.Format = log.Format(format)
	}
	return log.New(logCfg)
}

// runEnv holds the pieces that outlive a single execution: telemetry, the
// metrics endpoint, the cache, and the flag evaluator. Watch mode rebuilds
// the orchestrator per run but reuses the environment.
type runEnv struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *telemetry.Provider
	metrics  *http.Server
	cache    workflow.Cache
	flags    workflow.FlagEvaluator
}

func newRunEnv(cfg *config.Config, logger *slog.Logger, opts *runOptions) (*runEnv, error) {
	env := &runEnv{cfg: cfg, logger: logger}

	c, err := buildCache(cfg, opts)
	if err != nil {
		return nil, err
	}
	env.cache = c
	env.flags = buildFlagEvaluator(cfg)

	metricsAddr := opts.metricsAddr
	if metricsAddr == "" && cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "prometheus" {
		metricsAddr = cfg.Telemetry.MetricsAddr
	}

	if cfg.Telemetry.Enabled || metricsAddr != "" {
		version, _, _ := shared.GetVersion()
		provider, err := telemetry.New(context.Background(), telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
			Exporter:       cfg.Telemetry.Exporter,
			Endpoint:       cfg.Telemetry.Endpoint,
			Protocol:       cfg.Telemetry.Protocol,
			Insecure:       cfg.Telemetry.Insecure,
		})
		if err != nil {
			return nil, shared.NewConfigError("failed to initialize telemetry", err)
		}
		env.provider = provider
	}

	if metricsAddr != "" && env.provider != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", env.provider.MetricsHandler())
		env.metrics = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := env.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	return env, nil
}

// engineOptions translates the environment into orchestrator options.
func (e *runEnv) engineOptions() []workflow.Option {
	opts := []workflow.Option{
		workflow.WithLogger(e.logger),
		workflow.WithFlagEvaluator(e.flags),
		workflow.WithDefaultTimeout(e.cfg.Engine.DefaultTimeout.Std()),
	}
	if e.cache != nil {
		opts = append(opts, workflow.WithCache(e.cache))
	}
	if e.cfg.Engine.MaxParallel > 0 {
		opts = append(opts, workflow.WithParallelConcurrency(e.cfg.Engine.MaxParallel))
	}
	if e.provider != nil {
		opts = append(opts,
			workflow.WithMetrics(e.provider.Collector()),
			workflow.WithTracer(e.provider.Tracer("maestro")),
		)
	}
	return opts
}

func (e *runEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if e.metrics != nil {
		if err := e.metrics.Shutdown(ctx); err != nil {
			e.logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if e.provider != nil {
		if err := e.provider.Shutdown(ctx); err != nil {
			e.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

func buildCache(cfg *config.Config, opts *runOptions) (workflow.Cache, error) {
	backend := opts.cache
	if backend == "" {
		backend = cfg.Cache.Backend
	}
	var c workflow.Cache
	switch backend {
	case "off", "none":
		return nil, nil
	case "memory":
		c = cache.NewMemory()
	case "redis":
		if cfg.Cache.Addr == "" {
			return nil, shared.NewConfigError("redis cache requires an address", &pkgerrors.ConfigError{
				Key:    "cache.addr",
				Reason: "the redis backend needs a connection URL",
			})
		}
		rc, err := cache.OpenRedis(cfg.Cache.Addr)
		if err != nil {
			return nil, shared.NewConfigError("failed to connect to redis", err)
		}
		c = rc
	default:
		return nil, shared.NewConfigError(fmt.Sprintf("unknown cache backend %q", backend), &pkgerrors.ConfigError{
			Key:    "cache.backend",
			Reason: "supported backends are memory, redis, and off",
		})
	}
	return cache.Scope(c, cfg.Cache.KeyPrefix, cfg.Cache.DefaultTTL.Std()), nil
}

func buildFlagEvaluator(cfg *config.Config) workflow.FlagEvaluator {
	if cfg.Flags.Backend == "env" {
		return flags.Env{}
	}
	enabled := make(map[string]bool, len(cfg.Flags.Enabled))
	for _, key := range cfg.Flags.Enabled {
		enabled[key] = true
	}
	return flags.NewStatic(enabled)
}

// executeOnce runs the workflow at path exactly once against a fresh
// orchestrator. The bindings file is re-read on every call so watch mode
// picks up edits to scripted outputs.
func executeOnce(ctx context.Context, cmd *cobra.Command, path string, inputs map[string]any, env *runEnv, opts *runOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return shared.NewInvalidWorkflowError("failed to read workflow file", err)
	}
	wf, err := workflow.ParseDefinition(data)
	if err != nil {
		return shared.NewInvalidWorkflowError("failed to parse workflow", err)
	}

	table, err := buildTable(env, opts)
	if err != nil {
		return err
	}
	if opts.bindings != "" {
		if err := table.ValidateWorkflow(wf); err != nil {
			return shared.NewInvalidWorkflowError("workflow references unbound actions", err)
		}
	}

	orch := workflow.New(table, env.engineOptions()...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := orch.Close(closeCtx); err != nil {
			env.logger.Warn("orchestrator close failed", "error", err)
		}
	}()

	if _, err := orch.Register(wf); err != nil {
		return shared.NewInvalidWorkflowError("failed to register workflow", err)
	}

	progress := startProgress(cmd, orch)
	result, err := orch.ExecuteWorkflow(ctx, wf.ID, inputs, &workflow.ExecuteOptions{
		Timeout: opts.timeout,
		DryRun:  opts.dryRun,
	})
	progress.stop()
	if err != nil {
		return runError(err)
	}
	return renderResult(cmd, result, opts, progress != nil)
}

func buildTable(env *runEnv, opts *runOptions) (*dispatch.Table, error) {
	if opts.bindings == "" {
		// Dry runs never dispatch, so an empty table suffices.
		return dispatch.NewTable(), nil
	}
	bindings, err := stub.Load(opts.bindings)
	if err != nil {
		return nil, shared.NewConfigError("failed to load bindings", err)
	}
	table, err := bindings.Table(workflow.SystemClock{}, env.logger)
	if err != nil {
		return nil, shared.NewConfigError("invalid bindings", err)
	}
	return table, nil
}

// runError maps engine errors that occurred before any result was produced.
func runError(err error) error {
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindValidation:
		return shared.NewInvalidWorkflowError("workflow rejected", err)
	case pkgerrors.KindCancelled:
		return shared.NewExecutionError("execution cancelled", err)
	default:
		return shared.NewExecutionError("execution failed", err)
	}
}

// runResponse is the JSON envelope for run results.
type runResponse struct {
	output.JSONResponse
	Result *workflow.Result `json:"result"`
}

func renderResult(cmd *cobra.Command, result *workflow.Result, opts *runOptions, liveSteps bool) error {
	if shared.GetJSON() {
		resp := runResponse{
			JSONResponse: output.OK("run"),
			Result:       result,
		}
		resp.Success = result.Status == workflow.StatusCompleted || gated(result)
		if err := output.EmitJSONTo(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
		return exitForStatus(result, true)
	}

	renderText(cmd, result, opts, liveSteps)
	return exitForStatus(result, false)
}

// gated reports whether the execution was skipped by its feature flag.
// Gated workflows surface as cancelled results carrying WORKFLOW_SKIPPED.
func gated(result *workflow.Result) bool {
	return result.Status == workflow.StatusCancelled &&
		result.Error != nil &&
		result.Error.Code == pkgerrors.CodeWorkflowSkipped
}

// exitForStatus translates the terminal status into an exit code. Gated
// workflows exit zero: the flag doing its job is not a failure. In JSON
// mode the envelope already reported the outcome, so the error carries no
// message.
func exitForStatus(result *workflow.Result, jsonMode bool) error {
	if result.Status == workflow.StatusCompleted || gated(result) {
		return nil
	}
	msg := ""
	if !jsonMode {
		switch result.Status {
		case workflow.StatusTimedOut:
			msg = "execution timed out"
		case workflow.StatusCancelled:
			msg = "execution cancelled"
		default:
			msg = "execution failed"
		}
	}
	return &shared.ExitError{Code: shared.ExitExecutionFailed, Message: msg}
}

func renderText(cmd *cobra.Command, result *workflow.Result, opts *runOptions, liveSteps bool) {
	out := cmd.OutOrStdout()

	// Live progress already showed the step lines on stderr.
	if !liveSteps {
		for i := range result.Steps {
			fmt.Fprintln(out, "  "+stepLine(&result.Steps[i]))
		}
		if len(result.Steps) > 0 {
			fmt.Fprintln(out)
		}
	}

	duration := result.Duration.Round(time.Millisecond)
	switch {
	case gated(result):
		flag := ""
		if v, ok := result.Error.Details["flag"].(string); ok {
			flag = v
		}
		fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("workflow %s skipped (flag %q disabled)", result.WorkflowID, flag)))
	case result.Status == workflow.StatusCompleted:
		summary := fmt.Sprintf("workflow %s completed in %s (%d steps)", result.WorkflowID, duration, len(result.Steps))
		if opts.dryRun {
			summary += " [dry run]"
		}
		fmt.Fprintln(out, shared.RenderOK(summary))
		if result.Output != nil && !opts.dryRun {
			if encoded, err := json.MarshalIndent(result.Output, "", "  "); err == nil {
				fmt.Fprintf(out, "\nOutput:\n%s\n", encoded)
			}
		}
	case result.Status == workflow.StatusTimedOut:
		fmt.Fprintln(out, shared.RenderError(fmt.Sprintf("workflow %s timed out after %s", result.WorkflowID, duration)))
	case result.Status == workflow.StatusCancelled:
		fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("workflow %s cancelled after %s", result.WorkflowID, duration)))
	default:
		summary := fmt.Sprintf("workflow %s failed after %s", result.WorkflowID, duration)
		if result.Error != nil {
			summary += ": " + result.Error.Message
		}
		fmt.Fprintln(out, shared.RenderError(summary))
	}

	if opts.timeline && len(result.Steps) > 0 {
		renderTimeline(cmd, result)
	}
}

func renderTimeline(cmd *cobra.Command, result *workflow.Result) {
	renderer, err := timeline.NewRenderer()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn(err.Error()))
		return
	}
	chart, err := renderer.Render(result.WorkflowID, result.Steps)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn(err.Error()))
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s", chart)
}

func stepLine(sr *workflow.StepResult) string {
	duration := sr.Duration().Round(time.Millisecond)
	switch sr.Status {
	case workflow.StepStatusCompleted:
		msg := fmt.Sprintf("%s completed (%s)", sr.StepID, duration)
		if sr.Cached {
			msg += " [cached]"
		}
		if sr.Attempts > 1 {
			msg += fmt.Sprintf(" [attempt %d]", sr.Attempts)
		}
		return shared.RenderOK(msg)
	case workflow.StepStatusSkipped:
		return shared.RenderInfo(sr.StepID + " skipped")
	case workflow.StepStatusFailed:
		msg := fmt.Sprintf("%s failed (%s)", sr.StepID, duration)
		if sr.Error != nil {
			msg += ": " + sr.Error.Message
		}
		return shared.RenderError(msg)
	case workflow.StepStatusCancelled:
		return shared.RenderWarn(sr.StepID + " cancelled")
	default:
		return shared.RenderInfo(fmt.Sprintf("%s %s", sr.StepID, sr.Status))
	}
}
