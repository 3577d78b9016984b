package gateway

import (
	"net/http"

	"github.com/af-corp/concierge/internal/auth"
	"github.com/af-corp/concierge/internal/httputil"
	"github.com/af-corp/concierge/internal/ratelimit"
	"github.com/af-corp/concierge/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RoutesConfig struct {
	Version     string
	MetricsPath string
	Gatherer    prometheus.Gatherer
	KeyStore    auth.KeyStore
	Limiter     *ratelimit.Limiter
	Metrics     *telemetry.Metrics
}

// NewRouter mounts the transport and operator endpoints. Everything under
// /v1 requires a transport key.
func NewRouter(h *Handler, cfg RoutesConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, w.Header().Get("X-Request-ID"), http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": cfg.Version,
		})
	})

	if cfg.Gatherer != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.KeyStore))
		if cfg.Limiter != nil {
			r.Use(ratelimit.Middleware(cfg.Limiter, cfg.Metrics))
		}
		r.Post("/v1/messages", h.Messages)
		r.Get("/v1/health/providers", h.ProviderHealth)
	})
	return r
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
