package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tombee/maestro/pkg/workflow"
)

// redisClient is the slice of the go-redis API the adapter needs. Tests
// substitute a fake; production code passes a *redis.Client.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Redis adapts a Redis connection to workflow.Cache. Values are stored as
// JSON, so anything the engine caches must be JSON-encodable (step outputs
// are plain maps and slices).
type Redis struct {
	client redisClient
}

var _ workflow.Cache = (*Redis)(nil)

// NewRedis wraps an existing go-redis client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// OpenRedis connects to a Redis URL such as "redis://localhost:6379/0".
// The connection is lazy; callers that want to fail fast should Ping the
// returned client themselves.
func OpenRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Get implements workflow.Cache. A missing key is a miss, not an error.
func (r *Redis) Get(ctx context.Context, key string) (any, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false, fmt.Errorf("decode cached value for %q: %w", key, err)
	}
	return value, true, nil
}

// Put implements workflow.Cache. Redis enforces the TTL server-side; a
// non-positive ttl stores the key without expiry.
func (r *Redis) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", key, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
