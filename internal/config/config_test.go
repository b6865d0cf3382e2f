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
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Log defaults
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format 'json', got %q", cfg.Log.Format)
	}
	if cfg.Log.AddSource {
		t.Errorf("expected log add_source false, got true")
	}

	// Engine defaults
	if cfg.Engine.DefaultTimeout.Std() != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Engine.DefaultTimeout)
	}
	if cfg.Engine.MaxParallel != 0 {
		t.Errorf("expected max parallel 0 (unbounded), got %d", cfg.Engine.MaxParallel)
	}

	// Cache defaults
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected cache backend 'memory', got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.KeyPrefix != "" {
		t.Errorf("expected no cache key prefix by default, got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Cache.DefaultTTL.Std() != 5*time.Minute {
		t.Errorf("expected cache default TTL 5m, got %v", cfg.Cache.DefaultTTL)
	}

	// Flags defaults
	if cfg.Flags.Backend != "static" {
		t.Errorf("expected flags backend 'static', got %q", cfg.Flags.Backend)
	}

	// Telemetry defaults
	if cfg.Telemetry.Enabled {
		t.Errorf("expected telemetry disabled by default")
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Errorf("expected telemetry exporter 'stdout', got %q", cfg.Telemetry.Exporter)
	}
	if cfg.Telemetry.Protocol != "grpc" {
		t.Errorf("expected telemetry protocol 'grpc', got %q", cfg.Telemetry.Protocol)
	}
	if cfg.Telemetry.MetricsAddr != ":9464" {
		t.Errorf("expected metrics addr ':9464', got %q", cfg.Telemetry.MetricsAddr)
	}
	if cfg.Telemetry.ServiceName != "maestro" {
		t.Errorf("expected service name 'maestro', got %q", cfg.Telemetry.ServiceName)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errText string
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
			errText: "log.level must be one of",
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "invalid"
			},
			wantErr: true,
			errText: "log.format must be one of [json, text]",
		},
		{
			name: "invalid default timeout",
			modify: func(c *Config) {
				c.Engine.DefaultTimeout = 0
			},
			wantErr: true,
			errText: "engine.default_timeout must be positive",
		},
		{
			name: "negative max parallel",
			modify: func(c *Config) {
				c.Engine.MaxParallel = -1
			},
			wantErr: true,
			errText: "engine.max_parallel must be non-negative",
		},
		{
			name: "unknown cache backend",
			modify: func(c *Config) {
				c.Cache.Backend = "memcached"
			},
			wantErr: true,
			errText: "cache.backend must be one of [memory, redis, off]",
		},
		{
			name: "cache disabled",
			modify: func(c *Config) {
				c.Cache.Backend = "off"
			},
			wantErr: false,
		},
		{
			name: "redis backend without addr",
			modify: func(c *Config) {
				c.Cache.Backend = "redis"
			},
			wantErr: true,
			errText: "cache.addr is required",
		},
		{
			name: "redis backend with addr",
			modify: func(c *Config) {
				c.Cache.Backend = "redis"
				c.Cache.Addr = "redis://localhost:6379/0"
			},
			wantErr: false,
		},
		{
			name: "zero cache TTL",
			modify: func(c *Config) {
				c.Cache.DefaultTTL = 0
			},
			wantErr: true,
			errText: "cache.default_ttl must be positive",
		},
		{
			name: "unknown flags backend",
			modify: func(c *Config) {
				c.Flags.Backend = "launchdarkly"
			},
			wantErr: true,
			errText: "flags.backend must be one of [static, env]",
		},
		{
			name: "telemetry otlp without endpoint",
			modify: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Exporter = "otlp"
			},
			wantErr: true,
			errText: "telemetry.endpoint is required",
		},
		{
			name: "telemetry unknown exporter",
			modify: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Exporter = "jaeger"
			},
			wantErr: true,
			errText: "telemetry.exporter must be one of [prometheus, otlp, stdout]",
		},
		{
			name: "telemetry unknown protocol",
			modify: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Protocol = "quic"
			},
			wantErr: true,
			errText: "telemetry.protocol must be one of [grpc, http]",
		},
		{
			name: "telemetry prometheus without metrics addr",
			modify: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Exporter = "prometheus"
				c.Telemetry.MetricsAddr = ""
			},
			wantErr: true,
			errText: "telemetry.metrics_addr is required",
		},
		{
			name: "disabled telemetry skips exporter checks",
			modify: func(c *Config) {
				c.Telemetry.Enabled = false
				c.Telemetry.Exporter = "jaeger"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("expected error containing %q, got %q", tt.errText, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	// Save and restore environment
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)

	// Clear all config-related env vars
	clearConfigEnv()

	// Set test environment variables
	envVars := map[string]string{
		"LOG_LEVEL":                 "debug",
		"LOG_FORMAT":                "text",
		"LOG_SOURCE":                "1",
		"MAESTRO_DEFAULT_TIMEOUT":   "2m",
		"MAESTRO_MAX_PARALLEL":      "8",
		"MAESTRO_CACHE_BACKEND":     "redis",
		"MAESTRO_CACHE_ADDR":        "redis://localhost:6379/1",
		"MAESTRO_CACHE_KEY_PREFIX":  "staging",
		"MAESTRO_CACHE_TTL":         "90s",
		"MAESTRO_FLAGS_BACKEND":     "env",
		"MAESTRO_FLAGS":             "new-checkout, beta-search",
		"MAESTRO_TELEMETRY_ENABLED": "true",
		"MAESTRO_OTLP_INSECURE":     "1",
		"MAESTRO_METRICS_ADDR":      ":9999",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify log config
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected log format 'text', got %q", cfg.Log.Format)
	}
	if !cfg.Log.AddSource {
		t.Errorf("expected log add_source true, got false")
	}

	// Verify engine config
	if cfg.Engine.DefaultTimeout.Std() != 2*time.Minute {
		t.Errorf("expected default timeout 2m, got %v", cfg.Engine.DefaultTimeout)
	}
	if cfg.Engine.MaxParallel != 8 {
		t.Errorf("expected max parallel 8, got %d", cfg.Engine.MaxParallel)
	}

	// Verify cache config
	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected cache backend 'redis', got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Addr != "redis://localhost:6379/1" {
		t.Errorf("expected cache addr from env, got %q", cfg.Cache.Addr)
	}
	if cfg.Cache.KeyPrefix != "staging" {
		t.Errorf("expected cache key prefix 'staging', got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Cache.DefaultTTL.Std() != 90*time.Second {
		t.Errorf("expected cache TTL 90s, got %v", cfg.Cache.DefaultTTL)
	}

	// Verify flags config
	if cfg.Flags.Backend != "env" {
		t.Errorf("expected flags backend 'env', got %q", cfg.Flags.Backend)
	}
	if !reflect.DeepEqual(cfg.Flags.Enabled, []string{"new-checkout", "beta-search"}) {
		t.Errorf("expected flags [new-checkout beta-search], got %v", cfg.Flags.Enabled)
	}

	// Verify telemetry config
	if !cfg.Telemetry.Enabled {
		t.Errorf("expected telemetry enabled")
	}
	if !cfg.Telemetry.Insecure {
		t.Errorf("expected telemetry insecure")
	}
	if cfg.Telemetry.MetricsAddr != ":9999" {
		t.Errorf("expected metrics addr ':9999', got %q", cfg.Telemetry.MetricsAddr)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
log:
  level: warn
  format: text
  add_source: true

engine:
  default_timeout: 45s
  max_parallel: 4

cache:
  backend: redis
  addr: redis://cache.internal:6379/0
  key_prefix: orders
  default_ttl: 10m

flags:
  backend: static
  enabled:
    - new-checkout

telemetry:
  enabled: true
  exporter: otlp
  endpoint: collector.internal:4317
  protocol: grpc
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Save and restore environment
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify loaded values
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level 'warn', got %q", cfg.Log.Level)
	}
	if cfg.Engine.DefaultTimeout.Std() != 45*time.Second {
		t.Errorf("expected default timeout 45s, got %v", cfg.Engine.DefaultTimeout)
	}
	if cfg.Engine.MaxParallel != 4 {
		t.Errorf("expected max parallel 4, got %d", cfg.Engine.MaxParallel)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("expected cache backend 'redis', got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.KeyPrefix != "orders" {
		t.Errorf("expected cache key prefix 'orders', got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Cache.DefaultTTL.Std() != 10*time.Minute {
		t.Errorf("expected cache TTL 10m, got %v", cfg.Cache.DefaultTTL)
	}
	if !reflect.DeepEqual(cfg.Flags.Enabled, []string{"new-checkout"}) {
		t.Errorf("expected flags [new-checkout], got %v", cfg.Flags.Enabled)
	}
	if cfg.Telemetry.Exporter != "otlp" {
		t.Errorf("expected telemetry exporter 'otlp', got %q", cfg.Telemetry.Exporter)
	}
	if cfg.Telemetry.Endpoint != "collector.internal:4317" {
		t.Errorf("expected telemetry endpoint from file, got %q", cfg.Telemetry.Endpoint)
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
log:
  level: info
cache:
  key_prefix: file-prefix
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Save and restore environment
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	// Set env var to override file value
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify env overrides file
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug' from env, got %q", cfg.Log.Level)
	}
	// Key prefix should use file value (no env var override)
	if cfg.Cache.KeyPrefix != "file-prefix" {
		t.Errorf("expected key prefix 'file-prefix' from file, got %q", cfg.Cache.KeyPrefix)
	}
}

func TestLoadMinimalFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// A config that only sets one section should still load with defaults
	yamlContent := `
cache:
  backend: memory
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Save and restore environment
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load minimal config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Engine.DefaultTimeout.Std() != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", cfg.Engine.DefaultTimeout)
	}
	if cfg.Cache.KeyPrefix != "" {
		t.Errorf("expected no cache key prefix by default, got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Cache.DefaultTTL.Std() != 5*time.Minute {
		t.Errorf("expected cache TTL 5m, got %v", cfg.Cache.DefaultTTL)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Errorf("expected error for nonexistent file, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Errorf("expected error for invalid YAML, got nil")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid-config.yaml")

	// Config with invalid values
	yamlContent := `
cache:
  backend: memcached
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Save and restore environment
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)
	clearConfigEnv()

	_, err := Load(configPath)
	if err == nil {
		t.Errorf("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("expected validation error message, got %q", err.Error())
	}
}

func TestDiscover(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	// An explicit path always wins, whether or not it exists.
	if got := Discover("/explicit/config.yaml"); got != "/explicit/config.yaml" {
		t.Errorf("expected explicit path to pass through, got %q", got)
	}

	want := filepath.Join(tmpDir, "maestro", "config.yaml")
	if path := DefaultPath(); path != want {
		t.Fatalf("expected default path %q, got %q", want, path)
	}

	if got := Discover(""); got != "" {
		t.Errorf("expected empty path with no default file, got %q", got)
	}

	if err := os.MkdirAll(filepath.Dir(want), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(want, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Discover(""); got != want {
		t.Errorf("expected default file %q once present, got %q", want, got)
	}
}

// Helper functions for environment management
func saveEnv() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	return env
}

func restoreEnv(env map[string]string) {
	os.Clearenv()
	for k, v := range env {
		os.Setenv(k, v)
	}
}

func clearConfigEnv() {
	envVars := []string{
		"LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE",
		"MAESTRO_DEFAULT_TIMEOUT", "MAESTRO_MAX_PARALLEL",
		"MAESTRO_CACHE_BACKEND", "MAESTRO_CACHE_ADDR",
		"MAESTRO_CACHE_KEY_PREFIX", "MAESTRO_CACHE_TTL",
		"MAESTRO_FLAGS_BACKEND", "MAESTRO_FLAGS",
		"MAESTRO_TELEMETRY_ENABLED", "MAESTRO_TELEMETRY_EXPORTER",
		"MAESTRO_OTLP_ENDPOINT", "MAESTRO_OTLP_PROTOCOL", "MAESTRO_OTLP_INSECURE",
		"MAESTRO_METRICS_ADDR",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
