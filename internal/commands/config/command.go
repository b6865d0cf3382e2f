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

package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/maestro/internal/commands/shared"
	"github.com/tombee/maestro/internal/config"
	"github.com/tombee/maestro/internal/output"
)

// NewCommand creates the config command with subcommands
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Annotations: map[string]string{
			"group": "config",
		},
		Long: `Config inspects the layered CLI configuration: built-in defaults, then
the config file, then MAESTRO_* environment variables.

Subcommands:
  show - Display the effective configuration
  path - Show which config file would be read`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Bare `maestro config` behaves like `config show`.
		RunE: runShow,
	}

	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newPathCommand())

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Show prints the configuration after every layer is applied: defaults,
the config file (if one exists), and MAESTRO_* environment variables.

Redis credentials in the cache address are masked.`,
		Example: `  # Example 1: Effective configuration as YAML
  maestro config show

  # Example 2: Machine-readable output
  maestro config show --json

  # Example 3: Preview an alternative config file
  maestro --config staging.yaml config show`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runShow,
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show which config file would be read",
		Long: `Path prints the config file the CLI reads: the --config flag if set,
otherwise ~/.config/maestro/config.yaml.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPath,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	source := config.Discover(shared.GetConfigPath())
	cfg, err := config.Load(source)
	if err != nil {
		return shared.NewConfigError("failed to load configuration", err)
	}
	cfg.Cache.Addr = maskRedisURL(cfg.Cache.Addr)

	if shared.GetJSON() {
		type showResponse struct {
			output.JSONResponse
			Source string         `json:"source,omitempty"`
			Config *config.Config `json:"config"`
		}

		resp := showResponse{
			JSONResponse: output.OK("config show"),
			Source:       source,
			Config:       cfg,
		}
		return output.EmitJSONTo(cmd.OutOrStdout(), resp)
	}

	cmd.Println(shared.Header.Render("Configuration"))
	if source != "" {
		cmd.Printf("  %s %s\n\n", shared.RenderLabel("source:"), source)
	} else {
		cmd.Printf("  %s defaults and environment only\n\n", shared.RenderLabel("source:"))
	}

	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return encoder.Close()
}

func runPath(cmd *cobra.Command, args []string) error {
	path := shared.GetConfigPath()
	if path == "" {
		path = config.DefaultPath()
	}
	exists := false
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			exists = true
		}
	}

	if shared.GetJSON() {
		type pathResponse struct {
			output.JSONResponse
			Path   string `json:"path"`
			Exists bool   `json:"exists"`
		}

		resp := pathResponse{
			JSONResponse: output.OK("config path"),
			Path:         path,
			Exists:       exists,
		}
		return output.EmitJSONTo(cmd.OutOrStdout(), resp)
	}

	cmd.Println(path)
	if !exists {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderInfo("file does not exist; built-in defaults and MAESTRO_* variables apply"))
	}
	return nil
}

// maskRedisURL hides the password in a redis connection URL so show output
// is safe to paste into bug reports. Plain host:port addresses pass through.
func maskRedisURL(addr string) string {
	if addr == "" {
		return addr
	}
	u, err := url.Parse(addr)
	if err != nil || u.User == nil {
		return addr
	}
	if _, has := u.User.Password(); !has {
		return addr
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return u.String()
}
