package router

import (
	"sort"
	"sync"
	"time"
)

// HealthTracker manages circuit breakers for all providers.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker

	settings BreakerSettings
	now      func() time.Time
}

// NewHealthTracker creates a health tracker with the given circuit breaker config.
func NewHealthTracker(settings BreakerSettings) *HealthTracker {
	return &HealthTracker{
		breakers: make(map[string]*CircuitBreaker),
		settings: settings.withDefaults(),
		now:      time.Now,
	}
}

// GetBreaker returns (or lazily creates) the circuit breaker for a provider.
func (ht *HealthTracker) GetBreaker(provider string) *CircuitBreaker {
	ht.mu.RLock()
	cb, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return cb
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	// Double-check after acquiring write lock
	if cb, ok := ht.breakers[provider]; ok {
		return cb
	}
	cb = NewCircuitBreaker(ht.settings)
	cb.now = ht.now
	ht.breakers[provider] = cb
	return cb
}

func (ht *HealthTracker) lookup(provider string) (*CircuitBreaker, bool) {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	cb, ok := ht.breakers[provider]
	return cb, ok
}

// IsOpen returns true while the provider's cooldown deadline is in the future.
// Providers that never failed have no breaker yet and are closed.
func (ht *HealthTracker) IsOpen(provider string) bool {
	cb, ok := ht.lookup(provider)
	return ok && cb.IsOpen()
}

// RecordSuccess records a successful request for the provider.
func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.GetBreaker(provider).RecordSuccess()
}

// RecordFailure records a failed request for the provider.
func (ht *HealthTracker) RecordFailure(provider string) {
	ht.GetBreaker(provider).RecordFailure()
}

// Status returns the snapshot for one provider without creating a breaker.
func (ht *HealthTracker) Status(provider string) BreakerStatus {
	cb, ok := ht.lookup(provider)
	if !ok {
		return BreakerStatus{Provider: provider, State: StateClosed.String()}
	}
	s := cb.Status()
	s.Provider = provider
	return s
}

// AllStatuses returns snapshots for every provider seen so far, sorted by id.
func (ht *HealthTracker) AllStatuses() []BreakerStatus {
	ht.mu.RLock()
	ids := make([]string, 0, len(ht.breakers))
	for id := range ht.breakers {
		ids = append(ids, id)
	}
	ht.mu.RUnlock()

	sort.Strings(ids)
	out := make([]BreakerStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, ht.Status(id))
	}
	return out
}
