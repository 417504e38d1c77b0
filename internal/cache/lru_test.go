package cache

import (
	"testing"
	"time"
)

func TestLRUGetSet(t *testing.T) {
	c := NewLRU[int64](2, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %d ok=%v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRU[int64](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("expected c to be present")
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRU[int64](4, -time.Second)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRU[int64](4, time.Minute)
	c.Set("a", 1)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected deleted entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}
