package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Routing        RoutingConfig        `yaml:"routing"`
	Classification ClassificationConfig `yaml:"classification"`
	Escalation     EscalationConfig     `yaml:"escalation"`
	Notify         NotifyConfig         `yaml:"notify"`
	Embeddings     EmbeddingsConfig     `yaml:"embeddings"`
	FloodGuard     FloodGuardConfig     `yaml:"flood_guard"`
	Guard          GuardConfig          `yaml:"guard"`
	Diary          DiaryConfig          `yaml:"diary"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPath string `yaml:"metrics_path"`
}

// RoutingConfig controls how provider calls are made and how provider health
// is tracked.
type RoutingConfig struct {
	CallTimeout    time.Duration        `yaml:"call_timeout"`
	MaxTokens      int                  `yaml:"max_tokens"`
	Temperature    float64              `yaml:"temperature"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Policy           string        `yaml:"policy"` // "fixed" or "exponential"
	Cooldown         time.Duration `yaml:"cooldown"`
	MaxCooldown      time.Duration `yaml:"max_cooldown"`
}

type RateLimitConfig struct {
	BaseCooldown   time.Duration `yaml:"base_cooldown"`
	MaxCooldown    time.Duration `yaml:"max_cooldown"`
	NotifyInterval time.Duration `yaml:"notify_interval"`
}

// ClassificationConfig selects the classification strategy and tunes the
// fast tiers. Tiered and SplitModel are mutually exclusive; Tiered wins when
// both are set.
type ClassificationConfig struct {
	Tiered                 bool    `yaml:"tiered"`
	SplitModel             bool    `yaml:"split_model"`
	ClassificationProvider string  `yaml:"classification_provider"`
	ReplyProvider          string  `yaml:"reply_provider"`
	RegexEnabled           bool    `yaml:"regex_enabled"`
	FuzzyEnabled           bool    `yaml:"fuzzy_enabled"`
	SemanticEnabled        bool    `yaml:"semantic_enabled"`
	FuzzyThreshold         float64 `yaml:"fuzzy_threshold"`
	SemanticThreshold      float64 `yaml:"semantic_threshold"`
	LowConfidence          float64 `yaml:"low_confidence"`
	ClassifyMaxTokens      int     `yaml:"classify_max_tokens"`
	ReplyMaxTokens         int     `yaml:"reply_max_tokens"`
	ReplyTemperature       float64 `yaml:"reply_temperature"`
	HistoryTurns           int     `yaml:"history_turns"`
	TimeZone               string  `yaml:"time_zone"`
	BusinessName           string  `yaml:"business_name"`
}

type EscalationConfig struct {
	UnknownThreshold  int           `yaml:"unknown_threshold"`
	PolicyPath        string        `yaml:"policy_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
	ExcerptMessages   int           `yaml:"excerpt_messages"`
}

type NotifyConfig struct {
	StaffWebhookURL  string        `yaml:"staff_webhook_url"`
	AdminWebhookURL  string        `yaml:"admin_webhook_url"`
	OutboundURL      string        `yaml:"outbound_url"`
	PaymentForwardTo string        `yaml:"payment_forward_to"`
	Timeout          time.Duration `yaml:"timeout"`
}

type EmbeddingsConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
}

type FloodGuardConfig struct {
	Enabled   bool `yaml:"enabled"`
	PerMinute int  `yaml:"per_minute"`
}

// GuardConfig sets the prompt-injection thresholds. Blocked messages never
// reach a provider and are handed to staff.
type GuardConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BlockThreshold float64 `yaml:"block_threshold"`
	FlagThreshold  float64 `yaml:"flag_threshold"`
}

type DiaryConfig struct {
	Enabled bool `yaml:"enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     180 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "concierge",
			User:            "concierge",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			PoolSize:  20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPath: "/metrics",
		},
		Routing: RoutingConfig{
			CallTimeout: 60 * time.Second,
			MaxTokens:   800,
			Temperature: 0.7,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 3,
				Policy:           "exponential",
				Cooldown:         30 * time.Second,
				MaxCooldown:      10 * time.Minute,
			},
			RateLimit: RateLimitConfig{
				BaseCooldown: time.Minute,
				MaxCooldown:  24 * time.Hour,
			},
		},
		Classification: ClassificationConfig{
			Tiered:            true,
			RegexEnabled:      true,
			FuzzyEnabled:      true,
			SemanticEnabled:   false,
			FuzzyThreshold:    0.8,
			SemanticThreshold: 0.75,
			LowConfidence:     0.4,
			ClassifyMaxTokens: 200,
			ReplyMaxTokens:    800,
			ReplyTemperature:  0.7,
			HistoryTurns:      10,
			TimeZone:          "Asia/Kuala_Lumpur",
		},
		Escalation: EscalationConfig{
			UnknownThreshold:  3,
			EvaluationTimeout: 100 * time.Millisecond,
			ExcerptMessages:   5,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Model:   "text-embedding-3-small",
			Timeout: 30 * time.Second,
		},
		FloodGuard: FloodGuardConfig{
			Enabled:   true,
			PerMinute: 20,
		},
		Guard: GuardConfig{
			Enabled:        true,
			BlockThreshold: 0.9,
			FlagThreshold:  0.7,
		},
	}
}
