package retrieval

// embedCache is a bounded embedding cache keyed by a text prefix.
// Oldest entries are evicted first past capacity. Not safe for
// concurrent use; the index serializes access under its own lock.
type embedCache struct {
	capacity  int
	prefixLen int
	entries   map[string][]float32
	order     []string
}

func newEmbedCache(capacity, prefixLen int) *embedCache {
	if capacity <= 0 {
		capacity = 256
	}
	if prefixLen <= 0 {
		prefixLen = 128
	}
	return &embedCache{
		capacity:  capacity,
		prefixLen: prefixLen,
		entries:   make(map[string][]float32),
	}
}

func (c *embedCache) key(text string) string {
	if len(text) > c.prefixLen {
		return text[:c.prefixLen]
	}
	return text
}

func (c *embedCache) get(text string) ([]float32, bool) {
	vec, ok := c.entries[c.key(text)]
	return vec, ok
}

func (c *embedCache) put(text string, vec []float32) {
	key := c.key(text)
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = vec

	for len(c.entries) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *embedCache) clear() {
	c.entries = make(map[string][]float32)
	c.order = nil
}

func (c *embedCache) len() int {
	return len(c.entries)
}
