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
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/tombee/maestro/internal/output"
)

// newHelpTestRoot builds a root with one annotated subcommand, mirroring
// how maestro commands declare themselves.
func newHelpTestRoot() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "maestro",
		Short: "Test root",
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")

	runCmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Execute a workflow",
		Long:  "Run executes a workflow definition against stub service bindings.",
		Example: `  maestro run checkout.yaml -b bindings.yaml
  maestro run checkout.yaml --dry-run`,
		Annotations: map[string]string{
			"group": "execution",
		},
	}
	runCmd.Flags().StringP("bindings", "b", "", "Service bindings file")
	rootCmd.AddCommand(runCmd)

	helpCmd := NewHelpCommand(rootCmd)
	rootCmd.SetHelpCommand(helpCmd)
	return rootCmd
}

func TestHelpCommandJSON_AllCommands(t *testing.T) {
	rootCmd := newHelpTestRoot()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"help", "--json"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var resp HelpResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, buf.String())
	}

	if resp.Version != output.SchemaVersion {
		t.Errorf("expected version %q, got %q", output.SchemaVersion, resp.Version)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.DocsURL == "" {
		t.Error("expected docs_url to be set")
	}
	if len(resp.Commands) == 0 {
		t.Fatal("expected commands list, got none")
	}
	if resp.Command != nil {
		t.Errorf("expected no single-command metadata in a listing, got %+v", resp.Command)
	}
	if len(resp.GlobalFlags) != 2 {
		t.Errorf("expected 2 global flags, got %d", len(resp.GlobalFlags))
	}
}

func TestHelpCommandJSON_SingleCommand(t *testing.T) {
	rootCmd := newHelpTestRoot()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"help", "run", "--json"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var resp HelpResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, buf.String())
	}

	if resp.Command == nil {
		t.Fatal("expected command metadata, got nil")
	}
	if resp.Command.Name != "run" {
		t.Errorf("expected command name 'run', got %q", resp.Command.Name)
	}
	if resp.Command.Group != "execution" {
		t.Errorf("expected group 'execution', got %q", resp.Command.Group)
	}
	if resp.Command.Examples == "" {
		t.Error("expected examples to be populated")
	}
	if len(resp.Commands) > 0 {
		t.Errorf("expected no command list for a single command, got %d", len(resp.Commands))
	}
}

func TestHelpCommandHumanOutput(t *testing.T) {
	rootCmd := newHelpTestRoot()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"help"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Verify it's human-readable (not JSON)
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Error("expected human output, got JSON")
	}
}

func TestExtractCommandMetadata(t *testing.T) {
	cmd := &cobra.Command{
		Use:     "validate <pattern>...",
		Short:   "Validate workflow definitions",
		Long:    "Validate checks workflow files without executing them.",
		Example: "  maestro validate 'workflows/**/*.yaml'",
		Aliases: []string{"check"},
		Annotations: map[string]string{
			"group": "execution",
		},
	}
	cmd.Flags().String("dir", "", "Directory glob")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	metadata := extractCommandMetadata(cmd)

	if metadata.Name != "validate" {
		t.Errorf("expected name 'validate', got %q", metadata.Name)
	}
	if metadata.Usage != "validate <pattern>..." {
		t.Errorf("expected use line, got %q", metadata.Usage)
	}
	if metadata.Group != "execution" {
		t.Errorf("expected group 'execution', got %q", metadata.Group)
	}
	if len(metadata.Aliases) != 1 {
		t.Errorf("expected 1 alias, got %d", len(metadata.Aliases))
	}
	if len(metadata.Flags) != 2 {
		t.Fatalf("expected 2 flags, got %d", len(metadata.Flags))
	}

	for _, f := range metadata.Flags {
		if f.Name == "strict" && f.Default != "false" {
			t.Errorf("expected bool default 'false', got %q", f.Default)
		}
	}
}

func TestExtractGlobalFlags(t *testing.T) {
	rootCmd := &cobra.Command{Use: "maestro"}
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("log-level", "", "Log level")

	flags := extractGlobalFlags(rootCmd)

	if len(flags) != 2 {
		t.Fatalf("expected 2 global flags, got %d", len(flags))
	}

	names := map[string]bool{}
	for _, f := range flags {
		names[f.Name] = true
	}
	if !names["json"] || !names["log-level"] {
		t.Errorf("expected json and log-level flags, got %v", names)
	}
}
