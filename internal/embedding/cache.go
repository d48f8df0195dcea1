package embedding

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an LRU cache for embeddings keyed by the exact input text.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to capacity embeddings.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	c, err := lru.New[string, []float32](capacity)
	if err != nil {
		// lru.New only fails on non-positive size, which is guarded above.
		panic(err)
	}
	return &Cache{lru: c}
}

// Get returns the cached embedding for key if present.
func (c *Cache) Get(key string) ([]float32, bool) {
	return c.lru.Get(key)
}

// Set stores the embedding for key, evicting the least recently used entry at capacity.
func (c *Cache) Set(key string, value []float32) {
	c.lru.Add(key, value)
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	return c.lru.Len()
}
