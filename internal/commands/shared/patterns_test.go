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

package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	write := func(path string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x: 1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(dir, "a.yaml"))
	write(filepath.Join(dir, "nested", "b.yaml"))

	files, err := ExpandPatterns([]string{filepath.Join(dir, "**", "*.yaml")})
	if err != nil {
		t.Fatalf("ExpandPatterns failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 files, got %v", files)
	}

	// Overlapping patterns collapse to one entry per file.
	files, err = ExpandPatterns([]string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "*.yaml"),
	})
	if err != nil {
		t.Fatalf("ExpandPatterns failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 deduplicated file, got %v", files)
	}

	// Directories never appear in the result.
	files, err = ExpandPatterns([]string{filepath.Join(dir, "*")})
	if err != nil {
		t.Fatalf("ExpandPatterns failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected directories to be skipped, got %v", files)
	}
}

func TestExpandPatterns_BadPattern(t *testing.T) {
	_, err := ExpandPatterns([]string{"[unclosed"})
	if err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}

func TestExpandPatterns_NoMatches(t *testing.T) {
	files, err := ExpandPatterns([]string{filepath.Join(t.TempDir(), "*.yaml")})
	if err != nil {
		t.Fatalf("ExpandPatterns failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no matches, got %v", files)
	}
}
