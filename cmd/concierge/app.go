package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/af-corp/concierge/internal/assistant"
	"github.com/af-corp/concierge/internal/classify"
	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/diary"
	"github.com/af-corp/concierge/internal/guard"
	"github.com/af-corp/concierge/internal/notify"
	"github.com/af-corp/concierge/internal/policy"
	"github.com/af-corp/concierge/internal/ratelimit"
	"github.com/af-corp/concierge/internal/redact"
	"github.com/af-corp/concierge/internal/router"
	"github.com/af-corp/concierge/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// app is the assembled assistant. Every registry is built once here and
// injected; nothing is a package-level singleton.
type app struct {
	loader       *config.Loader
	promRegistry *prometheus.Registry
	metrics      *telemetry.Metrics
	registry     *router.Registry
	breakers     *router.HealthTracker
	cooldowns    *ratelimit.Manager
	orchestrator *router.Orchestrator
	notifier     *notify.Client
	policy       *policy.Evaluator
	pipeline     *classify.Pipeline
	router       *assistant.Router
	service      *assistant.Service
	settings     atomic.Pointer[assistant.Settings]
}

// loadConfig reads the configuration directory. The logger is configured
// from the loaded telemetry settings.
func loadConfig() (*config.Loader, error) {
	loader := config.NewLoader(configDir, slog.Default())
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return loader, nil
}

// newApp wires the assistant. rdb and db are optional: without Redis the
// cooldown mirror is off, without Postgres the diary is off.
func newApp(loader *config.Loader, rdb *redis.Client, db *pgxpool.Pool) *app {
	cfg := loader.Config()
	a := &app{loader: loader}

	a.promRegistry = prometheus.NewRegistry()
	a.promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = telemetry.NewMetrics(a.promRegistry)

	a.registry = router.NewRegistry(loader, cfg.Routing.CallTimeout)
	cb := cfg.Routing.CircuitBreaker
	a.breakers = router.NewHealthTracker(router.BreakerSettings{
		FailureThreshold: cb.FailureThreshold,
		Policy:           cb.Policy,
		Cooldown:         cb.Cooldown,
		MaxCooldown:      cb.MaxCooldown,
	})
	rl := cfg.Routing.RateLimit
	a.cooldowns = ratelimit.NewManager(ratelimit.CooldownSettings{
		BaseCooldown:   rl.BaseCooldown,
		MaxCooldown:    rl.MaxCooldown,
		NotifyInterval: rl.NotifyInterval,
	}, rdb)

	redactor := redact.New()
	a.notifier = notify.New(cfg.Notify, redactor)
	a.orchestrator = router.NewOrchestrator(a.registry, a.registry, a.breakers, a.cooldowns, a.notifier, a.metrics)

	a.pipeline = classify.NewPipeline(a.orchestrator, classify.Options{
		Settings:  func() config.ClassificationConfig { return a.loader.Config().Classification },
		Intents:   a.loader.Intents,
		Providers: a.registry,
		Embedder:  newEmbedder(cfg),
		Metrics:   a.metrics,
	})

	a.policy = policy.NewEvaluator(cfg.Escalation.EvaluationTimeout)
	if err := a.policy.Load(cfg.Escalation.PolicyPath); err != nil {
		slog.Warn("escalation policy not loaded, using unknown-count threshold", "path", cfg.Escalation.PolicyPath, "error", err)
	}

	s := assistant.SettingsFrom(cfg)
	a.settings.Store(&s)
	catalog := func() assistant.IntentCatalog { return a.pipeline.Catalog() }
	a.router = assistant.NewRouter(assistant.RouterDeps{
		Catalog:   catalog,
		Settings:  func() assistant.Settings { return *a.settings.Load() },
		Escalator: a.notifier,
		Admin:     a.notifier,
		Forwarder: a.notifier,
		Dialog:    &assistant.StepEngine{Catalog: catalog},
		Policy:    a.policy,
		Metrics:   a.metrics,
	})

	var store diary.Store
	if db != nil && cfg.Diary.Enabled {
		store = diary.NewPostgresStore(db, redactor)
	}
	a.service = assistant.NewService(assistant.ServiceDeps{
		Classifier: a.pipeline,
		Router:     a.router,
		Acker:      a.notifier,
		Screener:   guard.NewScanner(func() config.GuardConfig { return a.loader.Config().Guard }),
		Diary:      store,
	})

	loader.OnReload(a.handleReload)
	return a
}

func (a *app) handleReload(ev config.ReloadEvent) {
	a.registry.HandleReload(ev)
	a.pipeline.HandleReload(ev)
	if ev.Affects(config.DomainSettings) {
		s := assistant.SettingsFrom(a.loader.Config())
		a.settings.Store(&s)
	}
}

// providerIDs lists every configured provider id.
func (a *app) providerIDs() []string {
	var ids []string
	for _, p := range a.registry.All() {
		ids = append(ids, p.ID)
	}
	return ids
}

func newEmbedder(cfg *config.Config) classify.Embedder {
	if !cfg.Classification.SemanticEnabled {
		return nil
	}
	key := cfg.Embeddings.APIKey
	if key == "" && cfg.Embeddings.APIKeyEnv != "" {
		key = os.Getenv(cfg.Embeddings.APIKeyEnv)
	}
	if key == "" {
		slog.Warn("semantic tier enabled without an embeddings key, tier disabled")
		return nil
	}
	return classify.NewOpenAIEmbedder(classify.OpenAIEmbedderConfig{
		APIKey:  key,
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Timeout: cfg.Embeddings.Timeout,
	})
}
