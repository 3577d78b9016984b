package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/ratelimit"
	"github.com/af-corp/concierge/internal/router/adapters"
	"github.com/af-corp/concierge/internal/telemetry"
	"github.com/af-corp/concierge/internal/types"
)

const notifyTimeout = 10 * time.Second

// ProviderLister returns enabled providers in priority order.
type ProviderLister interface {
	ListEnabled() []config.ProviderConfig
}

// Caller performs one provider call. Empty text with a nil error is a soft
// failure.
type Caller interface {
	Chat(ctx context.Context, p config.ProviderConfig, req adapters.ChatRequest) (string, error)
}

// RateLimitNotifier receives throttled admin notifications.
type RateLimitNotifier interface {
	NotifyRateLimit(ctx context.Context, notice types.RateLimitNotice) error
}

// Breakers is the circuit breaker registry as seen by the orchestrator.
type Breakers interface {
	IsOpen(id string) bool
	RecordSuccess(id string)
	RecordFailure(id string)
	Status(id string) BreakerStatus
}

// Cooldowns is the rate-limit manager as seen by the orchestrator.
type Cooldowns interface {
	IsInCooldown(id string) bool
	CooldownRemaining(id string) time.Duration
	RecordRateLimit(id string) time.Duration
	RecordSuccess(id string)
	ShouldNotifyAdmin(id string) bool
	State(id string) ratelimit.ProviderState
}

// Result is the outcome of a fallback run. A zero Result means every
// candidate was skipped or failed.
type Result struct {
	Content  string
	Provider string
	Model    string
}

// OK reports whether a provider produced text.
func (r Result) OK() bool { return r.Content != "" }

// Orchestrator tries providers one at a time in priority order and returns
// the first non-empty reply.
type Orchestrator struct {
	providers ProviderLister
	caller    Caller
	health    Breakers
	cooldowns Cooldowns
	notifier  RateLimitNotifier
	metrics   *telemetry.Metrics
}

func NewOrchestrator(providers ProviderLister, caller Caller, health Breakers, cooldowns Cooldowns, notifier RateLimitNotifier, metrics *telemetry.Metrics) *Orchestrator {
	return &Orchestrator{
		providers: providers,
		caller:    caller,
		health:    health,
		cooldowns: cooldowns,
		notifier:  notifier,
		metrics:   metrics,
	}
}

// Candidates returns the providers to try. With an explicit order the
// enabled providers are filtered to those ids and arranged in that order;
// unknown or disabled ids are dropped.
func (o *Orchestrator) Candidates(order []string) []config.ProviderConfig {
	enabled := o.providers.ListEnabled()
	if len(order) == 0 {
		return enabled
	}

	byID := make(map[string]config.ProviderConfig, len(enabled))
	for _, p := range enabled {
		byID[p.ID] = p
	}
	seen := make(map[string]bool, len(order))
	out := make([]config.ProviderConfig, 0, len(order))
	for _, id := range order {
		p, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, p)
	}
	return out
}

// ChatWithFallback runs the request against each candidate in turn. It never
// returns an error: exhaustion is a zero Result.
func (o *Orchestrator) ChatWithFallback(ctx context.Context, req adapters.ChatRequest, order []string) Result {
	for _, p := range o.Candidates(order) {
		if ctx.Err() != nil {
			slog.Warn("fallback aborted", "error", ctx.Err())
			break
		}

		if o.health.IsOpen(p.ID) {
			slog.Info("provider skipped: circuit open", "provider", p.ID, "cooldown_remaining", o.health.Status(p.ID).CooldownRemaining.String())
			o.metrics.RecordProviderCall(p.ID, "skipped_open", 0)
			continue
		}
		if o.cooldowns.IsInCooldown(p.ID) {
			slog.Info("provider skipped: rate limit cooldown", "provider", p.ID, "cooldown_remaining", o.cooldowns.CooldownRemaining(p.ID).String())
			o.metrics.RecordProviderCall(p.ID, "skipped_cooldown", 0)
			continue
		}

		callReq := req
		if callReq.Model == "" {
			callReq.Model = p.Model
		}

		start := time.Now()
		text, err := o.caller.Chat(ctx, p, callReq)
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				// the caller went away; the provider is not at fault
				slog.Warn("provider call abandoned", "provider", p.ID, "error", ctx.Err(), "latency_ms", elapsed.Milliseconds())
				o.metrics.RecordProviderCall(p.ID, "canceled", elapsed)
				return Result{}
			}
			o.recordError(p, err, elapsed)
			continue
		}
		if text == "" {
			slog.Info("provider returned no text, trying next", "provider", p.ID)
			o.metrics.RecordProviderCall(p.ID, "empty", elapsed)
			continue
		}

		o.health.RecordSuccess(p.ID)
		o.cooldowns.RecordSuccess(p.ID)
		o.metrics.RecordProviderCall(p.ID, "success", elapsed)
		return Result{Content: text, Provider: p.ID, Model: callReq.Model}
	}

	slog.Warn("all providers failed or skipped")
	o.metrics.RecordFallbackExhausted()
	return Result{}
}

func (o *Orchestrator) recordError(p config.ProviderConfig, err error, elapsed time.Duration) {
	o.health.RecordFailure(p.ID)

	if !adapters.IsRateLimit(err) {
		slog.Warn("provider call failed", "provider", p.ID, "status", adapters.StatusOf(err), "error", err, "latency_ms", elapsed.Milliseconds())
		o.metrics.RecordProviderCall(p.ID, "error", elapsed)
		return
	}

	cooldown := o.cooldowns.RecordRateLimit(p.ID)
	state := o.cooldowns.State(p.ID)
	slog.Warn("provider rate limited", "provider", p.ID, "cooldown", cooldown.String(), "error_count", state.ErrorCount, "total_errors", state.TotalErrors)
	o.metrics.RecordProviderCall(p.ID, "rate_limited", elapsed)

	if o.notifier == nil || !o.cooldowns.ShouldNotifyAdmin(p.ID) {
		return
	}
	notice := types.RateLimitNotice{
		Provider:    p.ID,
		ErrorCount:  state.ErrorCount,
		TotalErrors: state.TotalErrors,
		Cooldown:    cooldown,
		Error:       err.Error(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := o.notifier.NotifyRateLimit(ctx, notice); err != nil {
			slog.Error("rate limit notification failed", "provider", notice.Provider, "error", err)
		}
	}()
}
