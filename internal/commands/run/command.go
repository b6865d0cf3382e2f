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
	"time"

	"github.com/spf13/cobra"
)

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Execute a workflow",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run executes a workflow definition against stub service bindings.

Bindings map each service/action pair a workflow dispatches to a scripted
response: a canned output, an optional latency, and an optional failure
script for exercising retry policies. Every action the workflow references
must be bound, or the run is rejected before execution starts.

Inputs are merged in precedence order: --input-file, then --input, then
--set. --input values are strings; --set values are parsed as YAML, so
"--set count=3" arrives as a number and "--set beta=true" as a boolean.

Watch mode re-executes the workflow whenever the definition or bindings
file changes, and keeps watching after failed runs.`,
		Example: `  # Run a workflow with string inputs
  maestro run checkout.yaml -b bindings.yaml -i user_id=u-123 -i region=eu

  # Typed inputs and a JSON input file
  maestro run feed.yaml -b bindings.yaml --input-file inputs.json --set limit=20

  # Walk the graph without dispatching anything
  maestro run checkout.yaml --dry-run

  # Re-run on every edit, with a Prometheus endpoint
  maestro run checkout.yaml -b bindings.yaml --watch --metrics-addr :9464`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.inputs, "input", "i", nil, "Workflow input in key=value format (string values)")
	cmd.Flags().StringVar(&opts.inputFile, "input-file", "", "JSON file with inputs (use '-' for stdin)")
	cmd.Flags().StringSliceVar(&opts.sets, "set", nil, "Workflow input in key=value format (YAML-typed values)")
	cmd.Flags().StringVarP(&opts.bindings, "bindings", "b", "", "Service bindings file (required unless --dry-run)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Override the workflow timeout (e.g. 30s, 2m)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Walk the graph and evaluate conditions without dispatching")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-run when the workflow or bindings file changes")
	cmd.Flags().BoolVar(&opts.timeline, "timeline", false, "Draw an execution timeline after the run")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	cmd.Flags().StringVar(&opts.cache, "cache", "", "Cache backend override: memory, redis, or off")

	return cmd
}

// runOptions collects the run command's flag values.
type runOptions struct {
	inputs      []string
	inputFile   string
	sets        []string
	bindings    string
	timeout     time.Duration
	dryRun      bool
	watch       bool
	timeline    bool
	metricsAddr string
	cache       string
}
