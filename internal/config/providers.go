package config

import "time"

// ProvidersConfig is the ordered provider list. Declaration order matters:
// it breaks ties between providers with the same priority.
type ProvidersConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	APIKey      string            `yaml:"api_key,omitempty"`
	APIKeyEnv   string            `yaml:"api_key_env,omitempty"`
	BaseURL     string            `yaml:"base_url,omitempty"`
	Model       string            `yaml:"model"`
	Enabled     bool              `yaml:"enabled"`
	Priority    int               `yaml:"priority"`
	Description string            `yaml:"description,omitempty"`
	Timeout     time.Duration     `yaml:"timeout,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// DisplayName returns Name, falling back to ID.
func (p ProviderConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
