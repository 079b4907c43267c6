// Package config loads gateway configuration from a YAML file and
// TG_-prefixed environment variables. Environment variables win.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Provider ProviderConfig `koanf:"provider"`
	Redis    RedisConfig    `koanf:"redis"`
	Actor    ActorConfig    `koanf:"actor"`
	Vector   VectorConfig   `koanf:"vector"`
	Limits   LimitsConfig   `koanf:"limits"`
	Tenants  []TenantConfig `koanf:"tenants"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// ProviderConfig configures the model provider endpoint. The gateway
// speaks the OpenAI-compatible chat/embeddings wire format.
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// RedisConfig configures the key-value store used for usage counters and
// the search cache.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// ActorConfig configures the durable actor store.
type ActorConfig struct {
	SQLitePath string `koanf:"sqlite_path"`
}

// VectorConfig configures the vector index backend.
type VectorConfig struct {
	URL        string `koanf:"url"`
	APIKey     string `koanf:"api_key"`
	Collection string `koanf:"collection"`
	Dimension  int    `koanf:"dimension"`
}

type LimitsConfig struct {
	MaxMessageLength   int `koanf:"max_message_length"`
	MaxRequestBodySize int `koanf:"max_request_body_size"`
}

// TenantConfig is the on-disk shape of a tenant. Loaded once at startup
// and treated as immutable at request time.
type TenantConfig struct {
	ID                    string            `koanf:"id"`
	GatewayID             string            `koanf:"gateway_id"`
	ChatModel             string            `koanf:"chat_model"`
	EmbeddingModel        string            `koanf:"embedding_model"`
	FallbackModel         string            `koanf:"fallback_model"`
	RateLimit             RateLimitConfig   `koanf:"rate_limit"`
	TokenBudget           TokenBudgetConfig `koanf:"token_budget"`
	SessionRetentionDays  int               `koanf:"session_retention_days"`
	MaxMessagesPerSession int               `koanf:"max_messages_per_session"`
	AllowedModels         []string          `koanf:"allowed_models"`
	AllowedHosts          []string          `koanf:"allowed_hosts"`
	APIKeys               []string          `koanf:"api_keys"`
	FeatureFlags          map[string]bool   `koanf:"feature_flags"`
}

type RateLimitConfig struct {
	PerMinute      int `koanf:"per_minute"`
	Burst          int `koanf:"burst"`
	WindowSec      int `koanf:"window_sec"`
	BurstWindowSec int `koanf:"burst_window_sec"`
}

type TokenBudgetConfig struct {
	Daily   int `koanf:"daily"`
	Monthly int `koanf:"monthly"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("TG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TG_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("limits.max_message_length") {
		k.Set("limits.max_message_length", 4096)
	}
	if !k.Exists("limits.max_request_body_size") {
		k.Set("limits.max_request_body_size", 10240)
	}
	if !k.Exists("actor.sqlite_path") {
		k.Set("actor.sqlite_path", "tenantgate.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Tenants))
	for i := range cfg.Tenants {
		t := &cfg.Tenants[i]
		if t.ID == "" {
			return fmt.Errorf("tenant %d: missing id", i)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("tenant %q: duplicate id", t.ID)
		}
		seen[t.ID] = struct{}{}
		if t.ChatModel == "" {
			return fmt.Errorf("tenant %q: missing chat_model", t.ID)
		}
		if t.EmbeddingModel == "" {
			return fmt.Errorf("tenant %q: missing embedding_model", t.ID)
		}
		if t.RateLimit.PerMinute <= 0 {
			return fmt.Errorf("tenant %q: rate_limit.per_minute must be positive", t.ID)
		}
		if t.RateLimit.WindowSec <= 0 {
			t.RateLimit.WindowSec = 60
		}
		if t.RateLimit.Burst > 0 && t.RateLimit.BurstWindowSec <= 0 {
			t.RateLimit.BurstWindowSec = 5
		}
		if t.SessionRetentionDays <= 0 {
			t.SessionRetentionDays = 30
		}
		if t.MaxMessagesPerSession <= 0 {
			t.MaxMessagesPerSession = 100
		}
	}
	return nil
}
