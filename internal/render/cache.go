package render

import "vectormap/internal/texturepool"

// Version is a cache generation.
type Version uint64

// Evictable reports whether an entry last used at entry is stale at current.
func Evictable(entry, current Version) bool {
	return entry < current
}

type generation[T any] struct {
	value   T
	version Version
}

// GenerationCache keeps pooled resources alive while they keep being used.
// Each frame calls Mark, touches what it draws through Get or Put, and ends
// with Sweep, which returns untouched entries to the pool.
type GenerationCache[K comparable, T any] struct {
	pool    *texturepool.Pool[T]
	version Version
	entries map[K]*generation[T]
}

func NewGenerationCache[K comparable, T any](pool *texturepool.Pool[T]) *GenerationCache[K, T] {
	return &GenerationCache[K, T]{pool: pool, entries: make(map[K]*generation[T])}
}

func (c *GenerationCache[K, T]) Version() Version {
	return c.version
}

func (c *GenerationCache[K, T]) Len() int {
	return len(c.entries)
}

// Get returns the entry for k and marks it used in the current generation.
func (c *GenerationCache[K, T]) Get(k K) (T, bool) {
	e, ok := c.entries[k]
	if !ok {
		var zero T
		return zero, false
	}
	e.version = c.version
	return e.value, true
}

// Put stores v for k in the current generation. A replaced value goes back
// to the pool.
func (c *GenerationCache[K, T]) Put(k K, v T) {
	if old, ok := c.entries[k]; ok {
		c.pool.Release(old.value)
	}
	c.entries[k] = &generation[T]{value: v, version: c.version}
}

// Mark starts a new generation.
func (c *GenerationCache[K, T]) Mark() {
	c.version++
}

// Sweep releases every entry not used since the last Mark and returns how
// many were released.
func (c *GenerationCache[K, T]) Sweep() int {
	n := 0
	for k, e := range c.entries {
		if Evictable(e.version, c.version) {
			c.pool.Release(e.value)
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Dispose releases every entry to the pool.
func (c *GenerationCache[K, T]) Dispose() {
	for k, e := range c.entries {
		c.pool.Release(e.value)
		delete(c.entries, k)
	}
}
