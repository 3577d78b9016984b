package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Reload domains. Subscribers decide which domains they care about.
const (
	DomainAll      = "all"
	DomainSettings = "settings"
	DomainIntents  = "intents"
)

const (
	gatewayFile   = "gateway.yaml"
	providersFile = "providers.yaml"
	intentsFile   = "intents.yaml"
)

// ReloadEvent is delivered to OnReload subscribers after a successful load.
type ReloadEvent struct {
	Domain     string
	Generation uint64
}

// Affects reports whether the event touches the given domain.
func (e ReloadEvent) Affects(domain string) bool {
	return e.Domain == DomainAll || e.Domain == domain
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// domainForFile maps a changed file to the reload domain it belongs to.
func domainForFile(name string) string {
	switch filepath.Base(name) {
	case gatewayFile, providersFile:
		return DomainSettings
	case intentsFile:
		return DomainIntents
	default:
		return ""
	}
}

// Loader manages configuration loading and hot-reload via fsnotify.
type Loader struct {
	configDir  string
	mu         sync.RWMutex
	cfg        *Config
	providers  *ProvidersConfig
	intents    *IntentsConfig
	generation atomic.Uint64

	watchMu  sync.Mutex
	watchers []func(ReloadEvent)
	logger   *slog.Logger
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// Load reads every configuration file. intents.yaml is optional.
func (l *Loader) Load() error {
	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(l.configDir, gatewayFile), cfg); err != nil {
		return fmt.Errorf("load gateway config: %w", err)
	}

	providers := &ProvidersConfig{}
	if err := LoadFile(filepath.Join(l.configDir, providersFile), providers); err != nil {
		return fmt.Errorf("load providers config: %w", err)
	}
	if err := validateProviders(providers); err != nil {
		return fmt.Errorf("load providers config: %w", err)
	}

	intents := &IntentsConfig{}
	if err := LoadFile(filepath.Join(l.configDir, intentsFile), intents); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load intents config: %w", err)
		}
		l.logger.Warn("intents config missing, every message goes to the llm", "dir", l.configDir)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.providers = providers
	l.intents = intents
	l.mu.Unlock()

	gen := l.generation.Add(1)
	l.logger.Info("configuration loaded", "dir", l.configDir, "generation", gen, "providers", len(providers.Providers))
	return nil
}

func validateProviders(p *ProvidersConfig) error {
	seen := make(map[string]bool, len(p.Providers))
	for i, prov := range p.Providers {
		if prov.ID == "" {
			return fmt.Errorf("provider #%d has no id", i)
		}
		if seen[prov.ID] {
			return fmt.Errorf("duplicate provider id %q", prov.ID)
		}
		seen[prov.ID] = true
	}
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Loader) Providers() *ProvidersConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.providers
}

func (l *Loader) Intents() *IntentsConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.intents
}

// Generation is incremented on every successful load.
func (l *Loader) Generation() uint64 {
	return l.generation.Load()
}

// OnReload registers a callback that fires after config is reloaded.
func (l *Loader) OnReload(fn func(ReloadEvent)) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	l.watchers = append(l.watchers, fn)
}

// Reload loads the configuration again and notifies subscribers with the
// given domain.
func (l *Loader) Reload(domain string) error {
	if err := l.Load(); err != nil {
		return err
	}
	l.notify(ReloadEvent{Domain: domain, Generation: l.Generation()})
	return nil
}

func (l *Loader) notify(ev ReloadEvent) {
	l.watchMu.Lock()
	watchers := append([]func(ReloadEvent){}, l.watchers...)
	l.watchMu.Unlock()
	for _, fn := range watchers {
		fn(ev)
	}
}

// Watch starts watching the config directory for changes and reloads on modification.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", l.configDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				domain := domainForFile(event.Name)
				if domain == "" {
					continue
				}
				l.logger.Info("config file changed, reloading", "file", event.Name, "domain", domain)
				if err := l.Reload(domain); err != nil {
					l.logger.Error("failed to reload config", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
