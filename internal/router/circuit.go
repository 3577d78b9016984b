package router

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota // healthy — calls flow
	StateOpen                       // tripped — calls skipped until the cooldown deadline
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Cooldown policies.
const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

// BreakerSettings configures every breaker a HealthTracker creates.
type BreakerSettings struct {
	FailureThreshold int
	Policy           string
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 3
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.MaxCooldown < s.Cooldown {
		s.MaxCooldown = s.Cooldown
	}
	if s.Policy == "" {
		s.Policy = PolicyExponential
	}
	return s
}

// BreakerStatus is a read-only snapshot for health reporting.
type BreakerStatus struct {
	Provider          string        `json:"provider"`
	State             string        `json:"state"`
	Failures          int           `json:"failures"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// CircuitBreaker implements a per-provider circuit breaker. It opens after
// FailureThreshold consecutive failures and stays open until its cooldown
// deadline passes and a call succeeds. The breaker is advisory: it only
// answers IsOpen, callers decide whether to skip.
type CircuitBreaker struct {
	mu sync.Mutex

	state     CircuitState
	failures  int
	trips     int
	openUntil time.Time

	settings BreakerSettings
	now      func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(settings BreakerSettings) *CircuitBreaker {
	return &CircuitBreaker{
		state:    StateClosed,
		settings: settings.withDefaults(),
		now:      time.Now,
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen reports whether the cooldown deadline is still in the future.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.now().Before(cb.openUntil)
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.trips = 0
	cb.openUntil = time.Time{}
}

// RecordFailure counts a failure and opens the circuit once the threshold
// is reached. Failures after an elapsed cooldown reopen it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.failures < cb.settings.FailureThreshold {
		return
	}
	cb.trips++
	cb.state = StateOpen
	cb.openUntil = cb.now().Add(cb.cooldown())
}

// cooldown returns the open duration for the current trip. Must be called
// with mu held.
func (cb *CircuitBreaker) cooldown() time.Duration {
	d := cb.settings.Cooldown
	if cb.settings.Policy != PolicyExponential {
		return d
	}
	for i := 1; i < cb.trips; i++ {
		d *= 2
		if d >= cb.settings.MaxCooldown {
			return cb.settings.MaxCooldown
		}
	}
	return d
}

// Status returns a snapshot without mutating the breaker.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	remaining := cb.openUntil.Sub(cb.now())
	if remaining < 0 {
		remaining = 0
	}
	return BreakerStatus{
		State:             cb.state.String(),
		Failures:          cb.failures,
		CooldownRemaining: remaining,
	}
}
