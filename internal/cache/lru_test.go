package cache

import (
	"testing"
	"time"
)

func newTestCache(maxSize int, ttl time.Duration) (*LRUCache[string], *time.Time) {
	c := NewLRUCache[string](maxSize, ttl)
	now := time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	*now = now.Add(2 * time.Minute)
	c.Set("c", "3")

	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestLRUCacheAdd(t *testing.T) {
	c, now := newTestCache(10, time.Minute)
	if !c.Add("k", "first") {
		t.Fatal("Add() on empty cache = false")
	}
	if c.Add("k", "second") {
		t.Error("Add() on live key = true")
	}
	if v, _ := c.Get("k"); v != "first" {
		t.Errorf("Get() = %q, want first", v)
	}

	*now = now.Add(2 * time.Minute)
	if !c.Add("k", "third") {
		t.Error("Add() on expired key = false")
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Delete() left the key")
	}
}

func TestJanitorSweep(t *testing.T) {
	a, now := newTestCache(10, time.Minute)
	b := NewLRUCache[int](10, time.Hour)
	a.Set("x", "1")
	b.Set("y", 1)
	*now = now.Add(time.Hour)

	j := NewJanitor(nil, a, b)
	if n := j.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
}
