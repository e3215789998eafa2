package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[int, string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int, string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set(2023, "a")
	c.Set(2024, "b")

	if _, ok := c.Get(2023); !ok {
		t.Fatal("2023 should be cached")
	}
	c.Set(2025, "c")

	if _, ok := c.Get(2024); ok {
		t.Error("2024 should have been evicted")
	}
	if v, ok := c.Get(2023); !ok || v != "a" {
		t.Errorf("Get(2023) = %q, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clock := newTestCache(4, time.Second)
	c.Set(1, "x")
	c.Set(2, "y")

	clock.t = clock.t.Add(2 * time.Second)
	c.Set(3, "z")

	if _, ok := c.Get(1); ok {
		t.Error("expired entry returned")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestLRUDeleteAndPurge(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	c.Set(1, "x")
	c.Set(2, "y")

	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Error("deleted entry returned")
	}

	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size() after Purge = %d", c.Size())
	}
	c.Set(3, "z")
	if v, ok := c.Get(3); !ok || v != "z" {
		t.Error("cache unusable after Purge")
	}
}

func TestManagerSweepAndStop(t *testing.T) {
	c, clock := newTestCache(4, time.Second)
	c.Set(1, "x")
	clock.t = clock.t.Add(time.Minute)

	m := NewManager()
	m.Register(c)
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
