package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownSettings configures the provider rate-limit cooldown policy.
type CooldownSettings struct {
	// BaseCooldown is the pause after the first rate-limit signal; each
	// further signal before a success doubles it.
	BaseCooldown time.Duration
	// MaxCooldown caps the pause. Vendor reset windows can be a full day.
	MaxCooldown time.Duration
	// NotifyInterval is the minimum gap between admin notifications for a
	// provider. Zero means once per active cooldown window.
	NotifyInterval time.Duration
}

func (s CooldownSettings) withDefaults() CooldownSettings {
	if s.BaseCooldown <= 0 {
		s.BaseCooldown = time.Minute
	}
	if s.MaxCooldown <= 0 {
		s.MaxCooldown = 24 * time.Hour
	}
	if s.MaxCooldown < s.BaseCooldown {
		s.MaxCooldown = s.BaseCooldown
	}
	return s
}

// ProviderState is the snapshot used for admin notification payloads.
type ProviderState struct {
	ErrorCount        int           `json:"error_count"`
	TotalErrors       int           `json:"total_errors"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

type providerCooldown struct {
	errorCount    int
	totalErrors   int
	cooldownUntil time.Time
	lastNotified  time.Time
}

// Manager tracks per-provider cooldowns triggered by vendor rate-limit
// responses. When a Redis client is supplied the deadline and lifetime total
// are mirrored so a restarted process keeps honouring long reset windows.
type Manager struct {
	mu     sync.Mutex
	states map[string]*providerCooldown

	settings CooldownSettings
	rdb      *redis.Client
	now      func() time.Time
}

// NewManager creates a cooldown manager. rdb may be nil.
func NewManager(settings CooldownSettings, rdb *redis.Client) *Manager {
	return &Manager{
		states:   make(map[string]*providerCooldown),
		settings: settings.withDefaults(),
		rdb:      rdb,
		now:      time.Now,
	}
}

// state returns the entry for id, creating it. Must be called with mu held.
func (m *Manager) state(id string) *providerCooldown {
	s, ok := m.states[id]
	if !ok {
		s = &providerCooldown{}
		m.states[id] = s
	}
	return s
}

// IsInCooldown reports whether calls to the provider should be skipped.
func (m *Manager) IsInCooldown(id string) bool {
	return m.CooldownRemaining(id) > 0
}

// CooldownRemaining returns the time until the provider may be called again.
func (m *Manager) CooldownRemaining(id string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return 0
	}
	if d := s.cooldownUntil.Sub(m.now()); d > 0 {
		return d
	}
	return 0
}

// RecordRateLimit counts a rate-limit signal and extends the cooldown.
func (m *Manager) RecordRateLimit(id string) time.Duration {
	m.mu.Lock()
	s := m.state(id)
	s.errorCount++
	s.totalErrors++
	cooldown := m.backoff(s.errorCount)
	until := m.now().Add(cooldown)
	if until.After(s.cooldownUntil) {
		s.cooldownUntil = until
	}
	total, deadline := s.totalErrors, s.cooldownUntil
	m.mu.Unlock()

	m.mirror(id, total, deadline)
	return cooldown
}

func (m *Manager) backoff(errorCount int) time.Duration {
	d := m.settings.BaseCooldown
	for i := 1; i < errorCount; i++ {
		d *= 2
		if d >= m.settings.MaxCooldown {
			return m.settings.MaxCooldown
		}
	}
	return d
}

// RecordSuccess clears the error count and cooldown. The lifetime total is
// kept.
func (m *Manager) RecordSuccess(id string) {
	m.mu.Lock()
	s, ok := m.states[id]
	if !ok || (s.errorCount == 0 && s.cooldownUntil.IsZero()) {
		m.mu.Unlock()
		return
	}
	s.errorCount = 0
	s.cooldownUntil = time.Time{}
	total := s.totalErrors
	m.mu.Unlock()

	m.mirror(id, total, time.Time{})
}

// ShouldNotifyAdmin returns true for the first rate-limit signal of a
// provider and then at most once per notify interval. A true answer marks
// the provider as notified.
func (m *Manager) ShouldNotifyAdmin(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(id)
	now := m.now()
	if s.lastNotified.IsZero() {
		s.lastNotified = now
		return true
	}

	interval := m.settings.NotifyInterval
	if interval <= 0 {
		interval = m.backoff(max(s.errorCount, 1))
	}
	if now.Sub(s.lastNotified) < interval {
		return false
	}
	s.lastNotified = now
	return true
}

// State returns the counters for a provider.
func (m *Manager) State(id string) ProviderState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return ProviderState{}
	}
	remaining := s.cooldownUntil.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	return ProviderState{
		ErrorCount:        s.errorCount,
		TotalErrors:       s.totalErrors,
		CooldownRemaining: remaining,
	}
}

func cooldownKey(id string) string {
	return fmt.Sprintf("concierge:rl:%s", id)
}

// mirror writes the provider's deadline to Redis. Errors are logged only.
func (m *Manager) mirror(id string, total int, until time.Time) {
	if m.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var untilUnix int64
	if !until.IsZero() {
		untilUnix = until.Unix()
	}
	key := cooldownKey(id)
	pipe := m.rdb.TxPipeline()
	pipe.HSet(ctx, key, "until", untilUnix, "total", total)
	pipe.Expire(ctx, key, m.settings.MaxCooldown+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("failed to mirror provider cooldown", "provider", id, "error", err)
	}
}

// Restore loads mirrored cooldowns for the given providers. Missing keys and
// Redis errors leave the in-memory state untouched.
func (m *Manager) Restore(ctx context.Context, ids []string) {
	if m.rdb == nil {
		return
	}
	for _, id := range ids {
		vals, err := m.rdb.HGetAll(ctx, cooldownKey(id)).Result()
		if err != nil {
			slog.Warn("failed to restore provider cooldown", "provider", id, "error", err)
			continue
		}
		if len(vals) == 0 {
			continue
		}
		untilUnix, _ := strconv.ParseInt(vals["until"], 10, 64)
		total, _ := strconv.Atoi(vals["total"])

		m.mu.Lock()
		s := m.state(id)
		s.totalErrors = total
		if untilUnix > 0 {
			until := time.Unix(untilUnix, 0)
			if until.After(m.now()) {
				s.cooldownUntil = until
				s.errorCount = 1
			}
		}
		m.mu.Unlock()

		if untilUnix > 0 {
			slog.Info("restored provider cooldown", "provider", id, "remaining", m.CooldownRemaining(id))
		}
	}
}
