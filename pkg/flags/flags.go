// Package flags provides ready-made feature-flag evaluators for gating
// workflow executions.
//
// The engine consults an evaluator only for workflows that declare a
// featureFlag trigger. Both evaluators here ignore the per-execution
// evaluation context; wire a custom workflow.FlagEvaluator (or a
// workflow.FlagFunc) to route it to a real flag service.
package flags

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/tombee/maestro/pkg/workflow"
)

// Static evaluates flags against a fixed in-memory table. Unknown keys
// report disabled. Safe for concurrent use; Set and Delete allow
// toggling at runtime.
type Static struct {
	mu     sync.RWMutex
	values map[string]bool
}

var _ workflow.FlagEvaluator = (*Static)(nil)

// NewStatic builds a Static evaluator from the given table. The map is
// copied; later changes to the argument do not affect the evaluator.
func NewStatic(values map[string]bool) *Static {
	s := &Static{values: make(map[string]bool, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Enabled implements workflow.FlagEvaluator.
func (s *Static) Enabled(key string, _ map[string]any) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set enables or disables a flag.
func (s *Static) Set(key string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = enabled
}

// Delete removes a flag; subsequent evaluations report it disabled.
func (s *Static) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// EnvPrefix is the environment variable prefix for Env-backed flags.
const EnvPrefix = "MAESTRO_FLAG_"

// Env evaluates flags from environment variables. The flag key
// "new-checkout" maps to MAESTRO_FLAG_NEW_CHECKOUT; every character
// outside [A-Za-z0-9] becomes an underscore. Unset or unparseable
// variables report the flag disabled.
type Env struct{}

var _ workflow.FlagEvaluator = Env{}

// Enabled implements workflow.FlagEvaluator.
func (Env) Enabled(key string, _ map[string]any) bool {
	return parseBool(os.Getenv(EnvPrefix + envKey(key)))
}

func envKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// parseBool converts a string to a boolean value.
// Accepts: "1", "t", "T", "true", "TRUE", "True"
func parseBool(val string) bool {
	val = strings.TrimSpace(val)
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return false
}
