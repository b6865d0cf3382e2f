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

package list

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/maestro/internal/commands/shared"
	"github.com/tombee/maestro/internal/output"
	"github.com/tombee/maestro/pkg/workflow"
)

// NewCommand creates the list command
func NewCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available workflow definitions",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `List shows the built-in workflow templates and, with --dir, definitions
found on disk. Directory listings accept doublestar globs; files that fail
to parse are reported as warnings and skipped.`,
		Example: `  # Example 1: Built-in templates only
  maestro list

  # Example 2: Include definitions from a directory tree
  maestro list --dir "workflows/**/*.yaml"

  # Example 3: Machine-readable listing
  maestro list --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, dir)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Glob of workflow files to include (e.g. \"workflows/**/*.yaml\")")

	return cmd
}

// workflowRow is one listed definition.
type workflowRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Steps       int    `json:"steps"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
}

func runList(cmd *cobra.Command, dir string) error {
	useJSON := shared.GetJSON()

	// The template registry logs nothing during a listing; discard to keep
	// command output clean.
	registry := workflow.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var rows []workflowRow
	for _, wf := range registry.List() {
		rows = append(rows, workflowRow{
			ID:          wf.ID,
			Name:        wf.Name,
			Version:     wf.Version,
			Steps:       len(wf.Steps),
			Source:      "template",
			Description: wf.Description,
		})
	}

	var warnings []output.JSONError
	if dir != "" {
		files, err := shared.ExpandPatterns([]string{dir})
		if err != nil {
			return shared.NewInvalidWorkflowError("invalid pattern", err)
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				warnings = append(warnings, output.JSONError{
					Code:    shared.ErrorCodeFileNotFound,
					Message: err.Error(),
					File:    file,
				})
				continue
			}
			wf, err := workflow.ParseDefinition(data)
			if err != nil {
				warnings = append(warnings, output.JSONError{
					Code:    shared.ErrorCodeSchemaViolation,
					Message: err.Error(),
					File:    file,
				})
				continue
			}
			rows = append(rows, workflowRow{
				ID:          wf.ID,
				Name:        wf.Name,
				Version:     wf.Version,
				Steps:       len(wf.Steps),
				Source:      file,
				Description: wf.Description,
			})
		}
	}

	if useJSON {
		type listResponse struct {
			output.JSONResponse
			Workflows []workflowRow      `json:"workflows"`
			Warnings  []output.JSONError `json:"warnings,omitempty"`
		}

		resp := listResponse{
			JSONResponse: output.OK("list"),
			Workflows:    rows,
			Warnings:     warnings,
		}
		return output.EmitJSONTo(cmd.OutOrStdout(), resp)
	}

	idWidth, nameWidth := 8, 8
	for _, row := range rows {
		if len(row.ID) > idWidth {
			idWidth = len(row.ID)
		}
		if len(row.Name) > nameWidth {
			nameWidth = len(row.Name)
		}
	}

	cmd.Println(shared.Header.Render("Workflows"))
	for _, row := range rows {
		version := row.Version
		if version == "" {
			version = "-"
		}
		cmd.Printf("  %-*s  %-*s  %2d steps  %-8s  %s\n",
			idWidth, row.ID,
			nameWidth, row.Name,
			row.Steps,
			version,
			shared.RenderLabel(row.Source),
		)
	}

	for _, warning := range warnings {
		cmd.Println(shared.RenderWarn(fmt.Sprintf("%s: %s", warning.File, warning.Message)))
	}

	cmd.Printf("\n%d workflows\n", len(rows))
	return nil
}
