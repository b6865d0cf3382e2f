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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/maestro/internal/commands/shared"
)

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "list" {
		t.Errorf("expected use 'list', got %q", cmd.Use)
	}
	if cmd.Flags().Lookup("dir") == nil {
		t.Error("--dir flag not defined")
	}
}

func TestListTemplates(t *testing.T) {
	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	out := buf.String()
	for _, id := range []string{"shopping-assistant", "cart-recovery", "personalized-feed", "fraud-check"} {
		if !strings.Contains(out, id) {
			t.Errorf("expected template %q in listing, got:\n%s", id, out)
		}
	}
	if !strings.Contains(out, "4 workflows") {
		t.Errorf("expected workflow count, got:\n%s", out)
	}
}

func TestListWithDir(t *testing.T) {
	dir := t.TempDir()
	valid := `id: checkout
name: Checkout
version: "2.0.0"
steps:
  - id: charge
    service: payments
    action: charge
`
	if err := os.WriteFile(filepath.Join(dir, "checkout.yaml"), []byte(valid), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("steps: ["), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--dir", filepath.Join(dir, "*.yaml")})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "checkout") {
		t.Errorf("expected file-sourced workflow in listing, got:\n%s", out)
	}
	if !strings.Contains(out, "broken.yaml") {
		t.Errorf("expected warning for unparsable file, got:\n%s", out)
	}
	if !strings.Contains(out, "5 workflows") {
		t.Errorf("expected 4 templates + 1 file = 5 workflows, got:\n%s", out)
	}
}

func TestListJSON(t *testing.T) {
	dir := t.TempDir()
	valid := `id: checkout
name: Checkout
steps:
  - id: charge
    service: payments
    action: charge
`
	path := filepath.Join(dir, "checkout.yaml")
	if err := os.WriteFile(path, []byte(valid), 0o644); err != nil {
		t.Fatal(err)
	}

	shared.SetJSONForTest(true)
	defer shared.SetJSONForTest(false)

	cmd := NewCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--dir", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("list failed: %v", err)
	}

	var resp struct {
		Success   bool `json:"success"`
		Workflows []struct {
			ID     string `json:"id"`
			Steps  int    `json:"steps"`
			Source string `json:"source"`
		} `json:"workflows"`
	}
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, buf.String())
	}

	if !resp.Success {
		t.Error("expected success=true")
	}
	if len(resp.Workflows) != 5 {
		t.Fatalf("expected 5 workflows, got %d", len(resp.Workflows))
	}

	var found bool
	for _, wf := range resp.Workflows {
		if wf.ID == "checkout" {
			found = true
			if wf.Source != path {
				t.Errorf("expected source %q, got %q", path, wf.Source)
			}
			if wf.Steps != 1 {
				t.Errorf("expected 1 step, got %d", wf.Steps)
			}
		}
	}
	if !found {
		t.Error("expected checkout workflow in JSON listing")
	}
}
