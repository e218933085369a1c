package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the embedding cache entry count.
const DefaultCacheSize = 4096

// Cache is a content-hash keyed embedding cache. A hit removes the chunk
// from the outbound batch entirely. It is an optimization only: the
// pipeline behaves identically without one.
type Cache struct {
	entries *lru.Cache[string, []float32]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates a cache holding up to size entries (DefaultCacheSize
// if size <= 0).
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// cacheKey hashes model and content together; the same text embedded
// under a different model must miss.
func cacheKey(model, content string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached vector for (model, content) if present.
func (c *Cache) Get(model, content string) ([]float32, bool) {
	vec, ok := c.entries.Get(cacheKey(model, content))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return vec, ok
}

// Put stores a validated vector for (model, content).
func (c *Cache) Put(model, content string, vec []float32) {
	c.entries.Add(cacheKey(model, content), vec)
}

// Stats returns lifetime hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
