package pool

import (
	"sync"
	"testing"
)

type scratch struct {
	buf []int
}

func newScratchPool(allocs *int) *Pool[scratch] {
	return New(
		func() *scratch {
			*allocs++
			return &scratch{buf: make([]int, 0, 8)}
		},
		func(s *scratch) { s.buf = s.buf[:0] },
	)
}

func TestPool_ReusesReleasedValues(t *testing.T) {
	var allocs int
	p := newScratchPool(&allocs)

	a := p.Get()
	a.buf = append(a.buf, 1, 2, 3)
	p.Release(a)

	if p.Idle() != 1 {
		t.Fatalf("Idle = %d, want 1", p.Idle())
	}

	b := p.Get()
	if b != a {
		t.Error("Get should return the released value")
	}
	if len(b.buf) != 0 {
		t.Errorf("released value not reset: %v", b.buf)
	}
	if allocs != 1 {
		t.Errorf("allocs = %d, want 1", allocs)
	}
}

func TestPool_BorrowReleasesOnScopeExit(t *testing.T) {
	var allocs int
	p := newScratchPool(&allocs)

	func() {
		s, release := p.Borrow()
		defer release()
		s.buf = append(s.buf, 42)
	}()

	if p.Idle() != 1 {
		t.Fatalf("Idle after Borrow scope = %d, want 1", p.Idle())
	}

	func() {
		_, release := p.Borrow()
		defer release()
	}()

	if allocs != 1 {
		t.Errorf("allocs = %d, want 1", allocs)
	}
}

func TestPool_ReleaseNil(t *testing.T) {
	var allocs int
	p := newScratchPool(&allocs)
	p.Release(nil)
	if p.Idle() != 0 {
		t.Errorf("Idle = %d after Release(nil), want 0", p.Idle())
	}
}

func TestSynced_ConcurrentBorrow(t *testing.T) {
	var mu sync.Mutex
	var allocs int
	s := NewSynced(
		func() *scratch {
			mu.Lock()
			allocs++
			mu.Unlock()
			return &scratch{}
		},
		func(v *scratch) { v.buf = v.buf[:0] },
	)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, release := s.Borrow()
			defer release()
			v.buf = append(v.buf, i)
		}()
	}
	wg.Wait()

	if s.Idle() != allocs {
		t.Errorf("Idle = %d, want every allocated value (%d) returned", s.Idle(), allocs)
	}
}
