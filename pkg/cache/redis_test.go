package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the redisClient slice in memory.
type fakeRedis struct {
	store  map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{store: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.store[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.store[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestRedis_RoundTrip(t *testing.T) {
	fake := newFakeRedis()
	r := &Redis{client: fake}
	ctx := context.Background()

	output := map[string]any{"products": []any{"p1", "p2"}, "count": 2}
	if err := r.Put(ctx, "maestro:search:u-1:wf", output, 5*time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.ttls["maestro:search:u-1:wf"] != 5*time.Minute {
		t.Errorf("ttl = %v, want 5m forwarded to the backend", fake.ttls["maestro:search:u-1:wf"])
	}

	value, hit, err := r.Get(ctx, "maestro:search:u-1:wf")
	if err != nil || !hit {
		t.Fatalf("Get() = (hit=%v, err=%v), want a hit", hit, err)
	}
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("value = %T, want map[string]any", value)
	}
	// JSON round-tripping widens numbers to float64; the engine's
	// comparisons normalize numeric types, so this is fine.
	if m["count"] != float64(2) {
		t.Errorf("count = %v (%T), want 2", m["count"], m["count"])
	}
}

func TestRedis_MissOnNil(t *testing.T) {
	r := &Redis{client: newFakeRedis()}
	if _, hit, err := r.Get(context.Background(), "absent"); hit || err != nil {
		t.Errorf("Get(absent) = (hit=%v, err=%v), want a clean miss", hit, err)
	}
}

func TestRedis_BackendErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.getErr = errors.New("connection refused")
	r := &Redis{client: fake}

	if _, _, err := r.Get(context.Background(), "k"); err == nil {
		t.Error("Get() should surface backend errors (the engine logs them as misses)")
	}

	fake = newFakeRedis()
	fake.setErr = errors.New("read-only replica")
	r = &Redis{client: fake}
	if err := r.Put(context.Background(), "k", "v", time.Minute); err == nil {
		t.Error("Put() should surface backend errors (the engine treats them as best-effort)")
	}
}

func TestRedis_CorruptEntry(t *testing.T) {
	fake := newFakeRedis()
	fake.store["k"] = "{not json"
	r := &Redis{client: fake}

	if _, _, err := r.Get(context.Background(), "k"); err == nil {
		t.Error("Get() on an undecodable entry should error")
	}
}

func TestOpenRedis(t *testing.T) {
	if _, err := OpenRedis("redis://localhost:6379/0"); err != nil {
		t.Errorf("OpenRedis() error = %v, want lazy success", err)
	}
	if _, err := OpenRedis("://bad"); err == nil {
		t.Error("OpenRedis() on a malformed url = nil, want an error")
	}
}
