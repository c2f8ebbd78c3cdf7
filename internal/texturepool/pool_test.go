package texturepool

import (
	"errors"
	"testing"
)

type fakeAllocator struct {
	next    int
	deleted []int
	fail    bool
}

func (a *fakeAllocator) CreateTexture() (int, error) {
	if a.fail {
		return 0, errors.New("out of memory")
	}
	a.next++
	return a.next, nil
}

func (a *fakeAllocator) DeleteTexture(t int) {
	a.deleted = append(a.deleted, t)
}

func TestAcquireReusesReleased(t *testing.T) {
	alloc := &fakeAllocator{}
	p := New[int](alloc)

	a, _ := p.Acquire()
	b, _ := p.Acquire()
	if a == b {
		t.Fatalf("two live textures share id %d", a)
	}
	p.Release(a)
	c, _ := p.Acquire()
	if c != a {
		t.Errorf("Acquire = %d, want reused %d", c, a)
	}
	if created, idle := p.Stats(); created != 2 || idle != 0 {
		t.Errorf("Stats = %d, %d", created, idle)
	}
	if len(alloc.deleted) != 0 {
		t.Errorf("pool freed implicitly: %v", alloc.deleted)
	}
}

func TestDispose(t *testing.T) {
	alloc := &fakeAllocator{}
	p := New[int](alloc)
	a, _ := p.Acquire()
	b, _ := p.Acquire()
	p.Release(a)
	p.Dispose()
	if len(alloc.deleted) != 1 || alloc.deleted[0] != a {
		t.Errorf("deleted = %v", alloc.deleted)
	}
	if _, err := p.Acquire(); !errors.Is(err, ErrDisposed) {
		t.Errorf("Acquire after Dispose: %v", err)
	}
	p.Release(b)
	if len(alloc.deleted) != 2 {
		t.Errorf("late release not deleted: %v", alloc.deleted)
	}
}

func TestAllocatorError(t *testing.T) {
	p := New[int](&fakeAllocator{fail: true})
	if _, err := p.Acquire(); err == nil {
		t.Errorf("expected error")
	}
}
