// Package memo wraps pure functions with a bounded, concurrency-safe cache.
package memo

import lru "github.com/hashicorp/golang-lru/v2"

// Memoizer caches the results of a pure function.
type Memoizer[K comparable, V any] struct {
	fn    func(K) V
	own   func(K) K
	cache *lru.Cache[K, V]
}

// New wraps fn. A capacity of zero or less disables caching and every call
// goes straight to fn.
func New[K comparable, V any](fn func(K) V, capacity int) *Memoizer[K, V] {
	m := &Memoizer[K, V]{fn: fn}
	if capacity > 0 {
		// lru.New only fails for non-positive sizes.
		cache, _ := lru.New[K, V](capacity)
		m.cache = cache
	}
	return m
}

// OwnKeys makes the memoizer store own(k) instead of k on a miss. Use it
// when keys may alias larger buffers, such as substrings of a request body.
func (m *Memoizer[K, V]) OwnKeys(own func(K) K) *Memoizer[K, V] {
	m.own = own
	return m
}

// Get returns fn(k), computing it at most once while k stays cached.
func (m *Memoizer[K, V]) Get(k K) V {
	if m.cache == nil {
		return m.fn(k)
	}
	if v, ok := m.cache.Get(k); ok {
		return v
	}
	v := m.fn(k)
	if m.own != nil {
		k = m.own(k)
	}
	m.cache.Add(k, v)
	return v
}

// Len returns the number of cached entries.
func (m *Memoizer[K, V]) Len() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Len()
}

// Purge drops every cached entry.
func (m *Memoizer[K, V]) Purge() {
	if m.cache != nil {
		m.cache.Purge()
	}
}
