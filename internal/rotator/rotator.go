// Package rotator implements the lock-free round-robin dispenser used to
// spread outbound connections across a fixed pool of proxies, plus the
// proxies.txt parser that builds that pool.
package rotator

import (
	"fmt"
	"sync/atomic"
)

// RoundRobinRotator is a lock-free cyclic dispenser over a fixed,
// non-empty slice. Next atomically increments an internal counter and
// returns the element at counter mod len(items); the counter is treated as
// an unsigned value so it wraps cleanly on overflow instead of going
// negative.
type RoundRobinRotator[T any] struct {
	items []T
	next  atomic.Uint64
}

// New constructs a RoundRobinRotator over items. Returns an error if items
// is empty — an empty rotator is a construction error, never a runtime
// state.
func New[T any](items []T) (*RoundRobinRotator[T], error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("rotator: cannot construct from an empty item list")
	}
	cp := make([]T, len(items))
	copy(cp, items)
	return &RoundRobinRotator[T]{items: cp}, nil
}

// Next returns the next item in cyclic order.
func (r *RoundRobinRotator[T]) Next() T {
	i := r.next.Add(1) - 1
	return r.items[i%uint64(len(r.items))]
}

// Len reports how many items the rotator cycles over.
func (r *RoundRobinRotator[T]) Len() int { return len(r.items) }

// ProxyRotator wraps a RoundRobinRotator[ProxyEntry] and tolerates an empty
// proxy list: Next returns nil instead of the rotator ever
// attempting to construct itself over zero elements.
type ProxyRotator struct {
	inner *RoundRobinRotator[ProxyEntry]
}

// NewProxyRotator builds a ProxyRotator. An empty or nil entries slice
// yields a rotator whose Next always reports "no proxy" rather than a
// construction error — callers that run with no proxies configured are
// the common case, not an error case.
func NewProxyRotator(entries []ProxyEntry) *ProxyRotator {
	if len(entries) == 0 {
		return &ProxyRotator{}
	}
	inner, err := New(entries)
	if err != nil {
		// len(entries) > 0 was just checked; New cannot fail here.
		return &ProxyRotator{}
	}
	return &ProxyRotator{inner: inner}
}

// Next returns the next proxy in rotation, or nil if the rotator has no
// proxies configured.
func (p *ProxyRotator) Next() *ProxyEntry {
	if p == nil || p.inner == nil {
		return nil
	}
	entry := p.inner.Next()
	return &entry
}
