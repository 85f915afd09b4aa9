// Package discovery implements DiscoveryService: looks up candidate mail
// server configs for a domain via registry cache, single-flight
// coalescing, and a fan-out of independent strategies.
package discovery

import (
	"sync"

	"github.com/corvidlabs/checkerbase/internal/registry"
)

type pendingLookup struct {
	done   chan struct{}
	result []registry.ServerConfig
	err    error
}

// PendingTracker coalesces concurrent lookups for the same domain: only
// the first caller for a domain actually performs the work, everyone else
// awaits its result.
type PendingTracker struct {
	mu      sync.Mutex
	pending map[string]*pendingLookup
}

// NewPendingTracker returns an empty tracker.
func NewPendingTracker() *PendingTracker {
	return &PendingTracker{pending: make(map[string]*pendingLookup)}
}

// GetOrCreate atomically either registers the caller as the first lookup
// for domain (isFirst=true, caller must later call Complete/Fail/Cancel)
// or returns a wait function for an already in-flight lookup.
func (t *PendingTracker) GetOrCreate(domain string) (isFirst bool, wait func() ([]registry.ServerConfig, error)) {
	t.mu.Lock()
	if existing, ok := t.pending[domain]; ok {
		t.mu.Unlock()
		return false, func() ([]registry.ServerConfig, error) {
			<-existing.done
			return existing.result, existing.err
		}
	}
	entry := &pendingLookup{done: make(chan struct{})}
	t.pending[domain] = entry
	t.mu.Unlock()

	return true, func() ([]registry.ServerConfig, error) {
		<-entry.done
		return entry.result, entry.err
	}
}

// Complete fulfills domain's pending lookup with a successful result.
func (t *PendingTracker) Complete(domain string, result []registry.ServerConfig) {
	t.finish(domain, result, nil)
}

// Fail fulfills domain's pending lookup with an error.
func (t *PendingTracker) Fail(domain string, err error) {
	t.finish(domain, nil, err)
}

// Cancel fulfills domain's pending lookup with a cancellation error.
func (t *PendingTracker) Cancel(domain string, err error) {
	t.finish(domain, nil, err)
}

func (t *PendingTracker) finish(domain string, result []registry.ServerConfig, err error) {
	t.mu.Lock()
	entry, ok := t.pending[domain]
	if ok {
		delete(t.pending, domain)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	entry.result = result
	entry.err = err
	close(entry.done)
}
