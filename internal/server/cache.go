package server

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// fitCache remembers encoded fit responses by request digest. The least
// recently used entry is evicted once the cache is full. A nil cache is
// disabled.
type fitCache struct {
	entries *lru.Cache[uint64, []byte]
}

// newFitCache returns nil when limit is not positive.
func newFitCache(limit int) *fitCache {
	if limit <= 0 {
		return nil
	}
	entries, err := lru.New[uint64, []byte](limit)
	if err != nil {
		return nil
	}
	return &fitCache{entries: entries}
}

// fitKey digests the route and the raw request body.
func fitKey(route string, body []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(route)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(body)
	return d.Sum64()
}

func (c *fitCache) get(key uint64) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *fitCache) put(key uint64, value []byte) {
	if c == nil {
		return
	}
	c.entries.Add(key, value)
}

func (c *fitCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
