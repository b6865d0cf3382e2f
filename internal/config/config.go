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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	maestroerrors "github.com/tombee/maestro/pkg/errors"
	"github.com/tombee/maestro/pkg/workflow"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete Maestro configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" json:"log"`
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Flags     FlagsConfig     `yaml:"flags" json:"flags"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	// Environment: LOG_LEVEL
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is the log format (json, text).
	// Environment: LOG_FORMAT
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source,omitempty" json:"add_source,omitempty"`
}

// EngineConfig configures the workflow engine.
type EngineConfig struct {
	// DefaultTimeout bounds executions of workflows that declare no
	// timeout of their own.
	// Environment: MAESTRO_DEFAULT_TIMEOUT
	// Default: 30s
	DefaultTimeout workflow.Duration `yaml:"default_timeout,omitempty" json:"default_timeout,omitempty"`

	// MaxParallel caps concurrently running parallel-group steps across
	// the engine. Zero means unbounded.
	// Environment: MAESTRO_MAX_PARALLEL
	MaxParallel int `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`
}

// CacheConfig configures the step-result cache.
type CacheConfig struct {
	// Backend selects the cache implementation: "memory", "redis", or
	// "off" to disable step caching entirely.
	// Environment: MAESTRO_CACHE_BACKEND
	// Default: memory
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Addr is the redis connection URL (redis://host:port/db).
	// Required when Backend is "redis".
	// Environment: MAESTRO_CACHE_ADDR
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`

	// KeyPrefix namespaces every cache key, on top of the per-step
	// prefix. Useful for sharing one Redis between environments.
	// Environment: MAESTRO_CACHE_KEY_PREFIX
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`

	// DefaultTTL applies to cache writes that carry no TTL of their own.
	// Environment: MAESTRO_CACHE_TTL
	// Default: 5m
	DefaultTTL workflow.Duration `yaml:"default_ttl,omitempty" json:"default_ttl,omitempty"`
}

// FlagsConfig configures feature-flag evaluation.
type FlagsConfig struct {
	// Backend selects the evaluator: "static" or "env".
	// The env backend reads MAESTRO_FLAG_* variables at evaluation time.
	// Environment: MAESTRO_FLAGS_BACKEND
	// Default: static
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Enabled lists the flags the static evaluator reports as on.
	// Environment: MAESTRO_FLAGS (comma-separated)
	Enabled []string `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// Enabled activates telemetry (default: false).
	// Environment: MAESTRO_TELEMETRY_ENABLED
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Exporter selects the telemetry exporter: "prometheus", "otlp",
	// or "stdout".
	// Environment: MAESTRO_TELEMETRY_EXPORTER
	// Default: stdout
	Exporter string `yaml:"exporter,omitempty" json:"exporter,omitempty"`

	// Endpoint is the OTLP collector endpoint (host:port).
	// Required when Exporter is "otlp".
	// Environment: MAESTRO_OTLP_ENDPOINT
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// Protocol selects the OTLP transport: "grpc" or "http".
	// Environment: MAESTRO_OTLP_PROTOCOL
	// Default: grpc
	Protocol string `yaml:"protocol,omitempty" json:"protocol,omitempty"`

	// Insecure disables TLS on OTLP connections (development only).
	// Environment: MAESTRO_OTLP_INSECURE
	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty"`

	// MetricsAddr is the listen address for the Prometheus scrape
	// endpoint.
	// Environment: MAESTRO_METRICS_ADDR
	// Default: :9464
	MetricsAddr string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`

	// ServiceName identifies this process in exported telemetry.
	// Default: maestro
	ServiceName string `yaml:"service_name,omitempty" json:"service_name,omitempty"`
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:     "info",
			Format:    "json",
			AddSource: false,
		},
		Engine: EngineConfig{
			DefaultTimeout: workflow.Duration(workflow.DefaultWorkflowTimeout),
			MaxParallel:    0,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			DefaultTTL: workflow.DefaultCacheTTL,
		},
		Flags: FlagsConfig{
			Backend: "static",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Exporter:    "stdout",
			Protocol:    "grpc",
			MetricsAddr: ":9464",
			ServiceName: "maestro",
		},
	}
}

// Load loads configuration from environment variables and optionally from a
// YAML file. Environment variables take precedence over file-based
// configuration. If configPath is empty, only environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from file if path provided
	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &maestroerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	// Override with environment variables
	cfg.loadFromEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, &maestroerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with sensible defaults.
// This allows minimal configs (e.g., just a cache section) to work without
// specifying all fields explicitly.
func (c *Config) applyDefaults() {
	defaults := Default()

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	// Engine defaults
	if c.Engine.DefaultTimeout == 0 {
		c.Engine.DefaultTimeout = defaults.Engine.DefaultTimeout
	}

	// Cache defaults
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaults.Cache.Backend
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = defaults.Cache.DefaultTTL
	}

	// Flags defaults
	if c.Flags.Backend == "" {
		c.Flags.Backend = defaults.Flags.Backend
	}

	// Telemetry defaults
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = defaults.Telemetry.Exporter
	}
	if c.Telemetry.Protocol == "" {
		c.Telemetry.Protocol = defaults.Telemetry.Protocol
	}
	if c.Telemetry.MetricsAddr == "" {
		c.Telemetry.MetricsAddr = defaults.Telemetry.MetricsAddr
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	// Log configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	// Engine configuration
	if val := os.Getenv("MAESTRO_DEFAULT_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Engine.DefaultTimeout = workflow.Duration(duration)
		}
	}
	if val := os.Getenv("MAESTRO_MAX_PARALLEL"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxParallel = n
		}
	}

	// Cache configuration
	if val := os.Getenv("MAESTRO_CACHE_BACKEND"); val != "" {
		c.Cache.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("MAESTRO_CACHE_ADDR"); val != "" {
		c.Cache.Addr = val
	}
	if val := os.Getenv("MAESTRO_CACHE_KEY_PREFIX"); val != "" {
		c.Cache.KeyPrefix = val
	}
	if val := os.Getenv("MAESTRO_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.DefaultTTL = workflow.Duration(duration)
		}
	}

	// Flags configuration
	if val := os.Getenv("MAESTRO_FLAGS_BACKEND"); val != "" {
		c.Flags.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("MAESTRO_FLAGS"); val != "" {
		var enabled []string
		for _, name := range strings.Split(val, ",") {
			if name = strings.TrimSpace(name); name != "" {
				enabled = append(enabled, name)
			}
		}
		c.Flags.Enabled = enabled
	}

	// Telemetry configuration
	if val := os.Getenv("MAESTRO_TELEMETRY_ENABLED"); val != "" {
		c.Telemetry.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("MAESTRO_TELEMETRY_EXPORTER"); val != "" {
		c.Telemetry.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("MAESTRO_OTLP_ENDPOINT"); val != "" {
		c.Telemetry.Endpoint = val
	}
	if val := os.Getenv("MAESTRO_OTLP_PROTOCOL"); val != "" {
		c.Telemetry.Protocol = strings.ToLower(val)
	}
	if val := os.Getenv("MAESTRO_OTLP_INSECURE"); val != "" {
		c.Telemetry.Insecure = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("MAESTRO_METRICS_ADDR"); val != "" {
		c.Telemetry.MetricsAddr = val
	}
}

// Validate checks the configuration for consistency. All problems are
// reported at once, joined under ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []string

	// Validate log configuration
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	// Validate engine configuration
	if c.Engine.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("engine.default_timeout must be positive, got %v", c.Engine.DefaultTimeout))
	}
	if c.Engine.MaxParallel < 0 {
		errs = append(errs, fmt.Sprintf("engine.max_parallel must be non-negative, got %d", c.Engine.MaxParallel))
	}

	// Validate cache configuration
	switch c.Cache.Backend {
	case "memory", "off", "none":
	case "redis":
		if c.Cache.Addr == "" {
			errs = append(errs, "cache.addr is required when cache.backend is \"redis\"")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be one of [memory, redis, off], got %q", c.Cache.Backend))
	}
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, fmt.Sprintf("cache.default_ttl must be positive, got %v", c.Cache.DefaultTTL))
	}

	// Validate flags configuration
	validFlagBackends := map[string]bool{"static": true, "env": true}
	if !validFlagBackends[c.Flags.Backend] {
		errs = append(errs, fmt.Sprintf("flags.backend must be one of [static, env], got %q", c.Flags.Backend))
	}

	// Validate telemetry configuration
	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "prometheus":
			if c.Telemetry.MetricsAddr == "" {
				errs = append(errs, "telemetry.metrics_addr is required when telemetry.exporter is \"prometheus\"")
			}
		case "otlp":
			if c.Telemetry.Endpoint == "" {
				errs = append(errs, "telemetry.endpoint is required when telemetry.exporter is \"otlp\"")
			}
		case "stdout":
		default:
			errs = append(errs, fmt.Sprintf("telemetry.exporter must be one of [prometheus, otlp, stdout], got %q", c.Telemetry.Exporter))
		}
		validProtocols := map[string]bool{"grpc": true, "http": true}
		if !validProtocols[c.Telemetry.Protocol] {
			errs = append(errs, fmt.Sprintf("telemetry.protocol must be one of [grpc, http], got %q", c.Telemetry.Protocol))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}
