package workflow

import (
	"context"
	"fmt"
	"time"
)

// Cache memoizes successful step outputs. Values are opaque to the engine;
// the backend owns TTL enforcement and must be safe for concurrent use.
// Get errors are treated as misses and Put is best-effort, so a flaky
// backend degrades cache efficiency but never fails a step.
type Cache interface {
	Get(ctx context.Context, key string) (value any, hit bool, err error)
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
}

// DefaultCacheKeyPrefix is used when a cache spec does not set its own.
const DefaultCacheKeyPrefix = "maestro"

// cacheKey builds the step's cache key. Anonymous executions share entries
// under the "anonymous" slot.
func cacheKey(spec *CacheSpec, stepID, userID, workflowID string) string {
	prefix := spec.KeyPrefix
	if prefix == "" {
		prefix = DefaultCacheKeyPrefix
	}
	if userID == "" {
		userID = "anonymous"
	}
	return fmt.Sprintf("%s:%s:%s:%s", prefix, stepID, userID, workflowID)
}
