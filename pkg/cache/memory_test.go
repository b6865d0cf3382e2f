package cache

import (
	"context"
	"testing"
	"time"
)

// fakeClock is a settable time source for expiry tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return ctx.Err()
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemory_PutGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, hit, err := m.Get(ctx, "missing"); hit || err != nil {
		t.Errorf("Get(missing) = (hit=%v, err=%v), want a clean miss", hit, err)
	}

	if err := m.Put(ctx, "k", map[string]any{"v": 1}, time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	value, hit, err := m.Get(ctx, "k")
	if err != nil || !hit {
		t.Fatalf("Get(k) = (hit=%v, err=%v), want a hit", hit, err)
	}
	if value.(map[string]any)["v"] != 1 {
		t.Errorf("value = %v, want the stored map", value)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(WithClock(clock))
	ctx := context.Background()

	m.Put(ctx, "k", "v", 5*time.Minute)

	clock.advance(5 * time.Minute)
	if _, hit, _ := m.Get(ctx, "k"); !hit {
		t.Error("entry at exactly its deadline should still hit")
	}

	clock.advance(time.Nanosecond)
	if _, hit, _ := m.Get(ctx, "k"); hit {
		t.Error("entry past its deadline should miss")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be swept on read", m.Len())
	}
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(WithClock(clock))
	ctx := context.Background()

	m.Put(ctx, "k", "v", 0)
	clock.advance(1000 * time.Hour)
	if _, hit, _ := m.Get(ctx, "k"); !hit {
		t.Error("zero-ttl entries must not expire")
	}
}

func TestMemory_PutRefreshesExpiry(t *testing.T) {
	clock := newFakeClock()
	m := NewMemory(WithClock(clock))
	ctx := context.Background()

	m.Put(ctx, "k", "old", time.Minute)
	clock.advance(50 * time.Second)
	m.Put(ctx, "k", "new", time.Minute)
	clock.advance(30 * time.Second)

	value, hit, _ := m.Get(ctx, "k")
	if !hit || value != "new" {
		t.Errorf("Get() = (%v, hit=%v), want the refreshed entry", value, hit)
	}
}

func TestMemory_DeleteAndFlush(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Put(ctx, "a", 1, 0)
	m.Put(ctx, "b", 2, 0)

	m.Delete("a")
	if _, hit, _ := m.Get(ctx, "a"); hit {
		t.Error("deleted key should miss")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	m.Flush()
	if m.Len() != 0 {
		t.Errorf("Len() after Flush = %d, want 0", m.Len())
	}
}
