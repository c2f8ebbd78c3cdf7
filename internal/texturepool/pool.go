// Package texturepool recycles GPU textures of a single size and format.
package texturepool

import (
	"errors"
	"sync"
)

// ErrDisposed is returned by Acquire after Dispose.
var ErrDisposed = errors.New("texture pool disposed")

// Allocator creates and destroys the pooled textures.
type Allocator[T any] interface {
	CreateTexture() (T, error)
	DeleteTexture(T)
}

// Pool hands out textures, preferring previously released ones. Textures are
// only destroyed by Dispose.
type Pool[T any] struct {
	mu       sync.Mutex
	alloc    Allocator[T]
	free     []T
	created  int
	disposed bool
}

func New[T any](alloc Allocator[T]) *Pool[T] {
	return &Pool[T]{alloc: alloc}
}

// Acquire returns a free texture or allocates a new one.
func (p *Pool[T]) Acquire() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	if p.disposed {
		return zero, ErrDisposed
	}
	if n := len(p.free); n > 0 {
		t := p.free[n-1]
		p.free = p.free[:n-1]
		return t, nil
	}
	t, err := p.alloc.CreateTexture()
	if err != nil {
		return zero, err
	}
	p.created++
	return t, nil
}

// Release makes t available to the next Acquire. Releasing into a disposed
// pool deletes the texture.
func (p *Pool[T]) Release(t T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		p.alloc.DeleteTexture(t)
		return
	}
	p.free = append(p.free, t)
}

// Dispose deletes every free texture. Textures still held by callers are
// deleted when they are released.
func (p *Pool[T]) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.free {
		p.alloc.DeleteTexture(t)
	}
	p.free = nil
	p.disposed = true
}

// Stats reports how many textures were ever created and how many are idle.
func (p *Pool[T]) Stats() (created, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, len(p.free)
}
