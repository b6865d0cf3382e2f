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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseInputs merges workflow inputs from three sources in precedence
// order: the input file first, then --input pairs, then --set pairs.
// --input values stay strings; --set values are decoded as YAML so
// numbers, booleans, and null arrive typed.
func parseInputs(inputArgs []string, inputFile string, setArgs []string) (map[string]any, error) {
	inputs := make(map[string]any)

	if inputFile != "" {
		fromFile, err := loadInputFile(inputFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			inputs[k] = v
		}
	}

	for _, arg := range inputArgs {
		key, value, err := splitPair(arg, "--input")
		if err != nil {
			return nil, err
		}
		inputs[key] = value
	}

	for _, arg := range setArgs {
		key, value, err := splitPair(arg, "--set")
		if err != nil {
			return nil, err
		}
		var typed any
		if err := yaml.Unmarshal([]byte(value), &typed); err != nil {
			return nil, fmt.Errorf("invalid --set value %q: %w", arg, err)
		}
		inputs[key] = typed
	}

	return inputs, nil
}

func splitPair(arg, flag string) (string, string, error) {
	parts := strings.SplitN(arg, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid %s format %q (expected key=value)", flag, arg)
	}
	return parts[0], parts[1], nil
}

// loadInputFile loads inputs from a JSON file or stdin.
func loadInputFile(path string) (map[string]any, error) {
	var data []byte
	var err error

	if path == "-" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return nil, fmt.Errorf("--input-file - requires input on stdin (pipe or redirect)")
		}
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
	}

	var inputs map[string]any
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON input: %w", err)
	}

	return inputs, nil
}
