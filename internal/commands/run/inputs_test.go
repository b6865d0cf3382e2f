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
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseInputs_KeyValue(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantKey   string
		wantValue string
		wantErr   bool
	}{
		{
			name:      "single key-value",
			args:      []string{"name=Alice"},
			wantKey:   "name",
			wantValue: "Alice",
		},
		{
			name:      "multiple key-values",
			args:      []string{"name=Alice", "age=30"},
			wantKey:   "age",
			wantValue: "30",
		},
		{
			name:      "value with equals sign",
			args:      []string{"equation=a=b"},
			wantKey:   "equation",
			wantValue: "a=b",
		},
		{
			name:    "invalid format",
			args:    []string{"invalid"},
			wantErr: true,
		},
		{
			name:    "empty key",
			args:    []string{"=value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs, err := parseInputs(tt.args, "", nil)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			val, ok := inputs[tt.wantKey]
			if !ok {
				t.Fatalf("key %q not found in inputs", tt.wantKey)
			}
			if val != tt.wantValue {
				t.Errorf("expected %q=%q, got %q=%v", tt.wantKey, tt.wantValue, tt.wantKey, val)
			}
		})
	}
}

func TestParseInputs_SetTyped(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		key  string
		want any
	}{
		{name: "integer", arg: "limit=20", key: "limit", want: 20},
		{name: "boolean", arg: "beta=true", key: "beta", want: true},
		{name: "float", arg: "threshold=0.75", key: "threshold", want: 0.75},
		{name: "string", arg: "region=eu-west-1", key: "region", want: "eu-west-1"},
		{name: "null", arg: "override=null", key: "override", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs, err := parseInputs(nil, "", []string{tt.arg})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, ok := inputs[tt.key]
			if !ok {
				t.Fatalf("key %q not found in inputs", tt.key)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v (%T), got %v (%T)", tt.want, tt.want, got, got)
			}
		})
	}
}

func TestParseInputs_Precedence(t *testing.T) {
	tmpDir := t.TempDir()
	jsonFile := filepath.Join(tmpDir, "inputs.json")
	content := `{"region": "us-east-1", "limit": 5, "user": "file-user"}`
	if err := os.WriteFile(jsonFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	inputs, err := parseInputs(
		[]string{"user=flag-user"},
		jsonFile,
		[]string{"limit=20"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inputs["region"] != "us-east-1" {
		t.Errorf("expected region from file, got %v", inputs["region"])
	}
	if inputs["user"] != "flag-user" {
		t.Errorf("expected --input to override file, got %v", inputs["user"])
	}
	if inputs["limit"] != 20 {
		t.Errorf("expected --set to override file, got %v (%T)", inputs["limit"], inputs["limit"])
	}
}

func TestLoadInputFile_ValidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	jsonFile := filepath.Join(tmpDir, "inputs.json")
	content := `{"name": "Alice", "count": 42}`
	if err := os.WriteFile(jsonFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	inputs, err := loadInputFile(jsonFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inputs["name"] != "Alice" {
		t.Errorf("expected name=Alice, got %v", inputs["name"])
	}
	if inputs["count"] != float64(42) { // JSON numbers are float64
		t.Errorf("expected count=42, got %v", inputs["count"])
	}
}

func TestLoadInputFile_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	jsonFile := filepath.Join(tmpDir, "invalid.json")
	if err := os.WriteFile(jsonFile, []byte("not json"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	if _, err := loadInputFile(jsonFile); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadInputFile_FileNotFound(t *testing.T) {
	if _, err := loadInputFile("/nonexistent/file.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
