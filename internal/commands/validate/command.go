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

package validate

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/maestro/internal/commands/shared"
	"github.com/tombee/maestro/internal/output"
	pkgerrors "github.com/tombee/maestro/pkg/errors"
	"github.com/tombee/maestro/pkg/workflow"
)

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pattern>...",
		Short: "Validate workflow definition files",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Validate checks that workflow definition files parse as YAML and satisfy
the definition rules: unique step ids, resolvable transitions and input
references, and well-formed retry, cache, and trigger clauses.

Patterns support doublestar globs, so a whole tree can be checked at once.

See also: maestro run, maestro list`,
		Example: `  # Example 1: Validate a single definition
  maestro validate workflow.yaml

  # Example 2: Validate every definition under workflows/
  maestro validate "workflows/**/*.yaml"

  # Example 3: Machine-readable report
  maestro validate "workflows/**/*.yaml" --json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on validation errors
		SilenceErrors: true, // Don't print error message (we handle it ourselves)
		RunE:          runValidate,
	}

	return cmd
}

// fileReport is the validation outcome for one file.
type fileReport struct {
	File     string             `json:"file"`
	Valid    bool               `json:"valid"`
	Workflow *workflowMetadata  `json:"workflow,omitempty"`
	Errors   []output.JSONError `json:"errors,omitempty"`
}

type workflowMetadata struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Version  string   `json:"version,omitempty"`
	Steps    int      `json:"steps"`
	Services []string `json:"services,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	useJSON := shared.GetJSON()

	files, err := shared.ExpandPatterns(args)
	if err != nil {
		if useJSON {
			output.EmitJSONErrorTo(cmd.OutOrStdout(), "validate", []output.JSONError{{
				Code:       shared.ErrorCodeInvalidInput,
				Message:    err.Error(),
				Suggestion: "Check the glob pattern syntax",
			}})
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: ""}
		}
		return shared.NewInvalidWorkflowError("invalid pattern", err)
	}
	if len(files) == 0 {
		if useJSON {
			output.EmitJSONErrorTo(cmd.OutOrStdout(), "validate", []output.JSONError{{
				Code:       shared.ErrorCodeFileNotFound,
				Message:    fmt.Sprintf("no workflow files match %v", args),
				Suggestion: "Check that the path or glob pattern is correct",
			}})
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: ""}
		}
		return shared.NewInvalidWorkflowError(fmt.Sprintf("no workflow files match %v", args), nil)
	}

	reports := make([]fileReport, 0, len(files))
	invalid := 0
	for _, file := range files {
		report := validateFile(file)
		if !report.Valid {
			invalid++
		}
		reports = append(reports, report)
	}

	if useJSON {
		type validateResponse struct {
			output.JSONResponse
			Files   []fileReport `json:"files"`
			Checked int          `json:"checked"`
			Invalid int          `json:"invalid"`
		}

		resp := validateResponse{
			JSONResponse: output.JSONResponse{
				Version: output.SchemaVersion,
				Command: "validate",
				Success: invalid == 0,
			},
			Files:   reports,
			Checked: len(reports),
			Invalid: invalid,
		}

		if err := output.EmitJSONTo(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
		if invalid > 0 {
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: ""}
		}
		return nil
	}

	for _, report := range reports {
		if report.Valid {
			label := report.File
			if report.Workflow != nil {
				label = fmt.Sprintf("%s (%s, %d steps)", report.File, report.Workflow.ID, report.Workflow.Steps)
			}
			cmd.Println(shared.RenderOK(label))
			continue
		}
		cmd.Println(shared.RenderError(report.File))
		for _, ve := range report.Errors {
			if ve.Location != nil && ve.Location.Line > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s:%d: error: %s\n", report.File, ve.Location.Line, ve.Message)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: error: %s\n", report.File, ve.Message)
			}
			if ve.Suggestion != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "  Suggestion: %s\n", ve.Suggestion)
			}
		}
	}

	if invalid > 0 {
		cmd.Printf("\n%d of %d files invalid\n", invalid, len(reports))
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: "validation failed"}
	}
	cmd.Printf("\n%d files valid\n", len(reports))
	return nil
}

// validateFile runs the staged checks for a single file: read, YAML syntax,
// then definition rules. The first failing stage reports and stops.
func validateFile(path string) fileReport {
	report := fileReport{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		report.Errors = append(report.Errors, output.JSONError{
			Code:       shared.ErrorCodeFileNotFound,
			Message:    fmt.Sprintf("failed to read workflow file: %v", err),
			File:       path,
			Suggestion: "Check that the file path is correct and the file exists",
		})
		return report
	}

	var yamlData interface{}
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		line, col := extractYAMLErrorLocation(err)
		jsonErr := output.JSONError{
			Code:       shared.ErrorCodeInvalidYAML,
			Message:    fmt.Sprintf("YAML syntax error: %v", err),
			File:       path,
			Suggestion: "Check YAML syntax and indentation",
		}
		if line > 0 {
			jsonErr.Location = &output.JSONLocation{Line: line, Column: col}
		}
		report.Errors = append(report.Errors, jsonErr)
		return report
	}

	def, err := workflow.ParseDefinition(data)
	if err != nil {
		jsonErr := output.JSONError{
			Code:    shared.ErrorCodeSchemaViolation,
			Message: err.Error(),
			File:    path,
		}
		var valErr *pkgerrors.ValidationError
		if errors.As(err, &valErr) && valErr.Suggestion != "" {
			jsonErr.Suggestion = valErr.Suggestion
		} else {
			jsonErr.Suggestion = "Review the workflow definition rules"
		}
		report.Errors = append(report.Errors, jsonErr)
		return report
	}

	report.Valid = true
	report.Workflow = &workflowMetadata{
		ID:       def.ID,
		Name:     def.Name,
		Version:  def.Version,
		Steps:    len(def.Steps),
		Services: extractServices(def),
	}
	return report
}

// extractServices returns the unique service names the workflow dispatches
// to, sorted.
func extractServices(def *workflow.Workflow) []string {
	if def == nil {
		return nil
	}

	set := make(map[string]bool)
	for _, step := range def.Steps {
		if step.Service != "" {
			set[step.Service] = true
		}
	}

	services := make([]string, 0, len(set))
	for svc := range set {
		services = append(services, svc)
	}
	sort.Strings(services)
	return services
}

// extractYAMLErrorLocation attempts to extract line and column from YAML parse error
func extractYAMLErrorLocation(err error) (line, col int) {
	// yaml.v3 includes line numbers in error messages
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		// Format is typically "line X: message"
		var l int
		if _, parseErr := fmt.Sscanf(typeErr.Errors[0], "line %d:", &l); parseErr == nil {
			return l, 0
		}
	}

	// Plain syntax errors read "yaml: line X: message"
	var l int
	if _, parseErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &l); parseErr == nil {
		return l, 0
	}
	return 0, 0
}
