// Package pool provides free lists for per-call scratch storage.
//
// A Pool hands out previously released values before allocating new ones.
// Pool itself is not safe for concurrent use; Synced guards Get and Release
// with a mutex for callers that share one pool across goroutines.
package pool

import "sync"

// Pool is a typed free list.
type Pool[T any] struct {
	free  []*T
	newFn func() *T
	reset func(*T)
}

// New returns a pool that allocates with newFn and clears values with reset
// before they are reused. reset may be nil.
func New[T any](newFn func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{newFn: newFn, reset: reset}
}

// Get returns a cleared value, reusing a released one when available.
func (p *Pool[T]) Get() *T {
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return v
	}
	return p.newFn()
}

// Release returns v to the pool. v must not be used afterwards.
func (p *Pool[T]) Release(v *T) {
	if v == nil {
		return
	}
	if p.reset != nil {
		p.reset(v)
	}
	p.free = append(p.free, v)
}

// Borrow returns a value and the function that gives it back. The usual form
// is:
//
//	s, release := p.Borrow()
//	defer release()
func (p *Pool[T]) Borrow() (*T, func()) {
	v := p.Get()
	return v, func() { p.Release(v) }
}

// Idle reports how many released values are waiting for reuse.
func (p *Pool[T]) Idle() int { return len(p.free) }

// Synced is a Pool whose Get and Release are serialized.
type Synced[T any] struct {
	mu sync.Mutex
	p  *Pool[T]
}

// NewSynced returns a mutex-guarded pool.
func NewSynced[T any](newFn func() *T, reset func(*T)) *Synced[T] {
	return &Synced[T]{p: New(newFn, reset)}
}

// Get returns a cleared value.
func (s *Synced[T]) Get() *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Get()
}

// Release returns v to the pool.
func (s *Synced[T]) Release(v *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Release(v)
}

// Borrow returns a value and its release function.
func (s *Synced[T]) Borrow() (*T, func()) {
	v := s.Get()
	return v, func() { s.Release(v) }
}

// Idle reports how many released values are waiting for reuse.
func (s *Synced[T]) Idle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Idle()
}
