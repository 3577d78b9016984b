package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/router/adapters"
)

// DefaultCallTimeout bounds every provider call.
const DefaultCallTimeout = 60 * time.Second

// CredentialSource tells where a resolved credential came from.
type CredentialSource string

const (
	CredentialInline    CredentialSource = "inline"
	CredentialEnv       CredentialSource = "env"
	CredentialNotNeeded CredentialSource = "not_needed"
	CredentialMissing   CredentialSource = "missing"
)

// Credential is a provider secret resolved for one configuration generation.
type Credential struct {
	Value  string
	Source CredentialSource
}

// Usable reports whether the provider can be called with this credential.
func (c Credential) Usable() bool {
	return c.Source != CredentialMissing
}

// ProviderSource supplies the current provider list.
type ProviderSource interface {
	Providers() *config.ProvidersConfig
}

// generation is one immutable view of the provider configuration.
type generation struct {
	number    uint64
	providers []config.ProviderConfig
	adapters  map[string]adapters.ProviderAdapter
}

// Registry holds the provider list and a ready adapter per usable provider.
// Reloads build a new generation and swap it in atomically; readers never
// block.
type Registry struct {
	source      ProviderSource
	current     atomic.Pointer[generation]
	seq         atomic.Uint64
	callTimeout time.Duration
	lookupEnv   func(string) (string, bool)
	httpClient  func(config.ProviderConfig) *http.Client
}

// NewRegistry creates a registry and builds the first generation from source.
func NewRegistry(source ProviderSource, callTimeout time.Duration) *Registry {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	r := &Registry{
		source:      source,
		callTimeout: callTimeout,
		lookupEnv:   os.LookupEnv,
		httpClient:  newHTTPClient,
	}
	r.current.Store(&generation{adapters: map[string]adapters.ProviderAdapter{}})
	if source != nil {
		r.Rebuild()
	}
	return r
}

func newHTTPClient(cfg config.ProviderConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// ResolveCredential applies the precedence inline secret, environment
// reference, no-credential variant. It never fails; a missing credential is
// reported through Source.
func (r *Registry) ResolveCredential(p config.ProviderConfig) Credential {
	if v := strings.TrimSpace(p.APIKey); v != "" {
		return Credential{Value: v, Source: CredentialInline}
	}
	if p.APIKeyEnv != "" {
		if v, ok := r.lookupEnv(p.APIKeyEnv); ok {
			if v = strings.TrimSpace(v); v != "" {
				return Credential{Value: v, Source: CredentialEnv}
			}
		}
	}
	if variant, ok := adapters.Lookup(p.Type); ok && !variant.NeedsCredential {
		return Credential{Source: CredentialNotNeeded}
	}
	return Credential{Source: CredentialMissing}
}

// HandleReload rebuilds the adapter cache for settings reloads.
func (r *Registry) HandleReload(ev config.ReloadEvent) {
	if !ev.Affects(config.DomainSettings) {
		return
	}
	gen := r.Rebuild()
	slog.Info("provider registry reloaded", "generation", gen, "config_generation", ev.Generation)
}

// Rebuild builds a fresh generation from the source and swaps it in.
func (r *Registry) Rebuild() uint64 {
	var providers []config.ProviderConfig
	if pc := r.source.Providers(); pc != nil {
		providers = append(providers, pc.Providers...)
	}

	built := make(map[string]adapters.ProviderAdapter, len(providers))
	for _, p := range providers {
		if !p.Enabled {
			continue
		}
		variant, ok := adapters.Lookup(p.Type)
		if !ok {
			slog.Error("provider skipped: unknown type", "provider", p.ID, "type", p.Type, "known", adapters.Tags())
			continue
		}
		cred := r.ResolveCredential(p)
		if !cred.Usable() {
			slog.Warn("provider skipped: no credential", "provider", p.ID, "type", p.Type, "api_key_env", p.APIKeyEnv)
			continue
		}
		adapter, err := variant.Factory(p, cred.Value, r.httpClient(p))
		if err != nil {
			slog.Error("provider skipped: adapter init failed", "provider", p.ID, "error", err)
			continue
		}
		built[p.ID] = adapter
		slog.Info("provider ready", "provider", p.ID, "type", p.Type, "model", p.Model, "priority", p.Priority, "credential", string(cred.Source))
	}

	gen := &generation{
		number:    r.seq.Add(1),
		providers: providers,
		adapters:  built,
	}
	r.current.Store(gen)
	return gen.number
}

// Generation returns the current generation number.
func (r *Registry) Generation() uint64 {
	return r.current.Load().number
}

// All returns every configured provider in declaration order.
func (r *Registry) All() []config.ProviderConfig {
	gen := r.current.Load()
	return append([]config.ProviderConfig(nil), gen.providers...)
}

// ListEnabled returns enabled providers sorted ascending by priority.
// Providers with equal priority keep their declaration order.
func (r *Registry) ListEnabled() []config.ProviderConfig {
	gen := r.current.Load()
	out := make([]config.ProviderConfig, 0, len(gen.providers))
	for _, p := range gen.providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (config.ProviderConfig, bool) {
	for _, p := range r.current.Load().providers {
		if p.ID == id {
			return p, true
		}
	}
	return config.ProviderConfig{}, false
}

// Adapter returns the cached adapter for a provider.
func (r *Registry) Adapter(id string) (adapters.ProviderAdapter, bool) {
	a, ok := r.current.Load().adapters[id]
	return a, ok
}

// Chat calls one provider with the per-call timeout. A provider without a
// ready adapter (no credential) is a soft skip: empty text, nil error.
func (r *Registry) Chat(ctx context.Context, p config.ProviderConfig, req adapters.ChatRequest) (string, error) {
	adapter, ok := r.Adapter(p.ID)
	if !ok {
		return "", nil
	}
	if req.Model == "" {
		req.Model = p.Model
	}

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	text, err := adapter.Chat(ctx, req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("provider %s timed out after %s: %w", p.ID, r.callTimeout, err)
		}
		return "", err
	}
	return strings.TrimSpace(text), nil
}
