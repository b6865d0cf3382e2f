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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/maestro/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for Maestro
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maestro",
		Short: "Maestro - service workflow orchestration",
		Long: `Maestro executes workflows that chain service invocations into a
directed graph: conditional transitions, retries with backoff, cached
step outputs, feature-flag gating, and parallel fan-outs.

Workflows are YAML definitions; runs dispatch against stub service
bindings so graphs can be exercised locally end to end.

Run 'maestro list' to see the built-in workflow templates.
Run 'maestro run <file> --dry-run' to walk a graph without dispatching.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Get flag pointers from shared package
	json, logLevel, logFormat, config := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(logFormat, "log-format", "", "Log format (json, text)")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/maestro/config.yaml, if present)")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
