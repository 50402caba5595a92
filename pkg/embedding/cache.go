// Package embedding maps text to fixed-dimension vectors via an external
// embedding API, with retry, pacing, and a content-keyed cache.
package embedding

import (
	"context"
	"sync"
)

// CacheStats reports cache occupancy and a conservative memory estimate.
type CacheStats struct {
	Entries     int   `json:"entries"`
	ApproxBytes int64 `json:"approx_bytes"`
}

// Cache stores vectors keyed by the exact (truncated) text that produced
// them. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Set(ctx context.Context, text string, vector []float32)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) CacheStats
}

// MemoryCache is the default in-process cache: a monotonically growing map,
// concurrent-read safe with serialized writes. Unbounded unless cleared.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]float32)}
}

// Get returns the cached vector for text, if present.
func (c *MemoryCache) Get(_ context.Context, text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.entries[text]
	return vec, ok
}

// Set stores a vector under its source text.
func (c *MemoryCache) Set(_ context.Context, text string, vector []float32) {
	c.mu.Lock()
	c.entries[text] = vector
	c.mu.Unlock()
}

// Clear empties the cache. Primarily for test isolation.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string][]float32)
	c.mu.Unlock()
	return nil
}

// Stats returns entry count and an estimate of bytes held: key bytes plus
// 4 bytes per vector element.
func (c *MemoryCache) Stats(_ context.Context) CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var bytes int64
	for text, vec := range c.entries {
		bytes += int64(len(text)) + int64(len(vec))*4
	}
	return CacheStats{Entries: len(c.entries), ApproxBytes: bytes}
}
