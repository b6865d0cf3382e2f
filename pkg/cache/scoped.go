package cache

import (
	"context"
	"time"

	"github.com/tombee/maestro/pkg/workflow"
)

// Scoped decorates a Cache with an installation-level key namespace and a
// TTL floor, on top of whatever per-step prefix the engine already applies.
type Scoped struct {
	inner      workflow.Cache
	prefix     string
	defaultTTL time.Duration
}

var _ workflow.Cache = (*Scoped)(nil)

// Scope wraps inner so every key gains the "prefix:" namespace and Puts
// carrying no TTL fall back to defaultTTL. An empty prefix or zero TTL
// leaves the respective behavior unchanged; if both are zero the inner
// cache is returned as is.
func Scope(inner workflow.Cache, prefix string, defaultTTL time.Duration) workflow.Cache {
	if prefix == "" && defaultTTL <= 0 {
		return inner
	}
	return &Scoped{inner: inner, prefix: prefix, defaultTTL: defaultTTL}
}

// Get implements workflow.Cache.
func (s *Scoped) Get(ctx context.Context, key string) (any, bool, error) {
	return s.inner.Get(ctx, s.key(key))
}

// Put implements workflow.Cache.
func (s *Scoped) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.inner.Put(ctx, s.key(key), value, ttl)
}

func (s *Scoped) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}
