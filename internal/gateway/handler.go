package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/af-corp/concierge/internal/auth"
	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/httputil"
	"github.com/af-corp/concierge/internal/ratelimit"
	"github.com/af-corp/concierge/internal/router"
	"github.com/af-corp/concierge/internal/router/adapters"
	"github.com/af-corp/concierge/internal/telemetry"
	"github.com/af-corp/concierge/internal/types"
)

const maxBodyBytes = 1 << 20

// MessageHandler answers one guest message. *assistant.Service implements it.
type MessageHandler interface {
	Handle(ctx context.Context, msg types.InboundMessage) types.Reply
}

// ProviderSnapshot is the registry view the health endpoint reports on.
type ProviderSnapshot interface {
	All() []config.ProviderConfig
	Generation() uint64
	Adapter(id string) (adapters.ProviderAdapter, bool)
}

type BreakerSnapshot interface {
	Status(provider string) router.BreakerStatus
}

type CooldownSnapshot interface {
	IsInCooldown(id string) bool
	State(id string) ratelimit.ProviderState
}

type HandlerDeps struct {
	Service    MessageHandler
	Providers  ProviderSnapshot
	Breakers   BreakerSnapshot
	Cooldowns  CooldownSnapshot
	Limiter    *ratelimit.Limiter
	FloodGuard func() config.FloodGuardConfig
	Metrics    *telemetry.Metrics
}

// Handler holds dependencies for the transport-facing HTTP handlers.
type Handler struct {
	service    MessageHandler
	providers  ProviderSnapshot
	breakers   BreakerSnapshot
	cooldowns  CooldownSnapshot
	limiter    *ratelimit.Limiter
	floodGuard func() config.FloodGuardConfig
	metrics    *telemetry.Metrics
}

func NewHandler(d HandlerDeps) *Handler {
	if d.FloodGuard == nil {
		d.FloodGuard = func() config.FloodGuardConfig { return config.FloodGuardConfig{} }
	}
	return &Handler{
		service:    d.Service,
		providers:  d.Providers,
		breakers:   d.Breakers,
		cooldowns:  d.Cooldowns,
		limiter:    d.Limiter,
		floodGuard: d.FloodGuard,
		metrics:    d.Metrics,
	}
}

// messageRequest is the transport's JSON body for one guest message.
type messageRequest struct {
	Sender      string          `json:"sender"`
	DisplayName string          `json:"display_name"`
	Text        string          `json:"text"`
	History     []types.Message `json:"history"`
	InstanceID  string          `json:"instance_id"`
	AckURL      string          `json:"ack_url"`
}

// Messages handles POST /v1/messages
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var body messageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteBadRequestError(w, reqID, "Request body too large")
			return
		}
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	defer r.Body.Close()

	body.Sender = strings.TrimSpace(body.Sender)
	if body.Sender == "" {
		httputil.WriteBadRequestError(w, reqID, "sender is required")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		httputil.WriteBadRequestError(w, reqID, "text is required")
		return
	}
	if body.InstanceID == "" {
		body.InstanceID = authInfo.InstanceID
	}

	if fg := h.floodGuard(); fg.Enabled && h.limiter != nil {
		if res := h.limiter.AllowSender(r.Context(), body.InstanceID, body.Sender, fg.PerMinute); !res.Allowed {
			slog.Warn("sender flood guard tripped",
				"request_id", reqID,
				"sender", body.Sender,
				"instance_id", body.InstanceID,
				"limit", fg.PerMinute,
			)
			h.metrics.RecordRateLimitHit("sender", body.InstanceID)
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
			httputil.WriteRateLimitError(w, reqID, "Too many messages from this sender, slow down")
			return
		}
	}

	reply := h.service.Handle(r.Context(), types.InboundMessage{
		Sender:      body.Sender,
		DisplayName: body.DisplayName,
		Text:        body.Text,
		History:     body.History,
		InstanceID:  body.InstanceID,
		AckURL:      body.AckURL,
		RequestID:   reqID,
	})
	httputil.WriteJSON(w, reqID, http.StatusOK, reply)
}

type providerHealth struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Model      string                  `json:"model"`
	Enabled    bool                    `json:"enabled"`
	Priority   int                     `json:"priority"`
	Ready      bool                    `json:"ready"`
	Available  bool                    `json:"available"`
	Breaker    router.BreakerStatus    `json:"breaker"`
	InCooldown bool                    `json:"in_cooldown"`
	RateLimit  ratelimit.ProviderState `json:"rate_limit"`
}

type healthResponse struct {
	Status     string           `json:"status"`
	Generation uint64           `json:"generation"`
	Providers  []providerHealth `json:"providers"`
}

// ProviderHealth handles GET /v1/health/providers. Status is "degraded" when
// no enabled provider can currently take a call.
func (h *Handler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	if h.providers == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Provider registry not configured")
		return
	}

	resp := healthResponse{Status: "degraded", Generation: h.providers.Generation()}
	for _, p := range h.providers.All() {
		ph := providerHealth{
			ID:       p.ID,
			Type:     p.Type,
			Model:    p.Model,
			Enabled:  p.Enabled,
			Priority: p.Priority,
			Breaker:  router.BreakerStatus{Provider: p.ID, State: router.StateClosed.String()},
		}
		_, ph.Ready = h.providers.Adapter(p.ID)
		if h.breakers != nil {
			ph.Breaker = h.breakers.Status(p.ID)
		}
		if h.cooldowns != nil {
			ph.InCooldown = h.cooldowns.IsInCooldown(p.ID)
			ph.RateLimit = h.cooldowns.State(p.ID)
		}
		ph.Available = p.Enabled && ph.Ready && !ph.InCooldown && ph.Breaker.CooldownRemaining <= 0
		if ph.Available {
			resp.Status = "ok"
		}
		resp.Providers = append(resp.Providers, ph)
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, resp)
}
