package retrieval

import (
	"strings"
	"testing"
)

func TestEmbedCachePrefixKey(t *testing.T) {
	c := newEmbedCache(8, 10)

	long := strings.Repeat("a", 10) + "different tails"
	c.put(long, []float32{1})

	// Same prefix hits the cached entry even with a different tail.
	if _, ok := c.get(strings.Repeat("a", 10) + "other tail"); !ok {
		t.Error("expected a prefix-keyed hit")
	}
	if _, ok := c.get("completely different"); ok {
		t.Error("expected a miss for a different prefix")
	}
}

func TestEmbedCacheEvictsOldestFirst(t *testing.T) {
	c := newEmbedCache(2, 64)

	c.put("first", []float32{1})
	c.put("second", []float32{2})
	c.put("third", []float32{3})

	if c.len() != 2 {
		t.Fatalf("expected capacity bound of 2, got %d", c.len())
	}
	if _, ok := c.get("first"); ok {
		t.Error("expected the oldest entry evicted")
	}
	if _, ok := c.get("second"); !ok {
		t.Error("expected the second entry retained")
	}
	if _, ok := c.get("third"); !ok {
		t.Error("expected the newest entry retained")
	}
}

func TestEmbedCacheOverwriteKeepsSingleEntry(t *testing.T) {
	c := newEmbedCache(4, 64)

	c.put("key", []float32{1})
	c.put("key", []float32{2})

	if c.len() != 1 {
		t.Fatalf("expected 1 entry after overwrite, got %d", c.len())
	}
	vec, ok := c.get("key")
	if !ok || vec[0] != 2 {
		t.Errorf("expected the newer value, got %v", vec)
	}
}

func TestEmbedCacheClear(t *testing.T) {
	c := newEmbedCache(4, 64)
	c.put("key", []float32{1})
	c.clear()
	if c.len() != 0 {
		t.Errorf("expected empty cache after clear, got %d", c.len())
	}
}
