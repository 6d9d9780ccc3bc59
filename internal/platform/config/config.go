package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Registry backends selectable through REGISTRY_BACKEND.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	RegistryBackend string `env:"REGISTRY_BACKEND" default:"redis"`
	RedisURL        string `env:"REDIS_URL"`
	RegistryKey     string `env:"REGISTRY_KEY" default:"connections"`
	DatabaseURL     string `env:"DATABASE_URL"`

	BroadcastConcurrency int           `env:"BROADCAST_CONCURRENCY" default:"16"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT" default:"5s"`

	// Default delivery endpoint for send triggers that carry no routing info.
	// Empty domain name means delivery through the in-process gateway.
	GatewayScheme     string `env:"GATEWAY_SCHEME" default:"https"`
	GatewayDomainName string `env:"GATEWAY_DOMAIN_NAME"`
	GatewayStage      string `env:"GATEWAY_STAGE"`

	// Comma-separated domains send triggers may route to, on top of GATEWAY_DOMAIN_NAME.
	GatewayAllowedDomains string `env:"GATEWAY_ALLOWED_DOMAINS"`

	// In-process delivery only reaches sockets of this process, so with a
	// shared registry it is only safe when exactly one instance runs.
	SingleInstance bool `env:"SINGLE_INSTANCE" default:"false"`

	// Comma-separated browser origins allowed to open /ws. Empty allows any origin.
	WebSocketAllowedOrigins string `env:"WS_ALLOWED_ORIGINS"`

	WebSocketSendRate  float64 `env:"WS_SEND_RATE" default:"5"`
	WebSocketSendBurst int     `env:"WS_SEND_BURST" default:"10"`
	TriggerRateLimit   float64 `env:"TRIGGER_RATE_LIMIT" default:"50"`
	TriggerRateBurst   int     `env:"TRIGGER_RATE_BURST" default:"100"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// AllowedOrigins splits WS_ALLOWED_ORIGINS into trimmed, non-empty entries.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.WebSocketAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// AllowedGatewayDomains returns GATEWAY_DOMAIN_NAME and the entries of
// GATEWAY_ALLOWED_DOMAINS, trimmed and non-empty.
func (c *Config) AllowedGatewayDomains() []string {
	var domains []string
	if c.GatewayDomainName != "" {
		domains = append(domains, c.GatewayDomainName)
	}
	for _, d := range strings.Split(c.GatewayAllowedDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.RegistryBackend {
	case BackendRedis:
		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required")
		}
		if cfg.RegistryKey == "" {
			return errors.New("REGISTRY_KEY must not be empty")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case BackendMemory:
		// EMPTY
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be one of redis, postgres, memory; got %q", cfg.RegistryBackend)
	}

	if cfg.BroadcastConcurrency < 1 {
		return errors.New("BROADCAST_CONCURRENCY must be at least 1")
	}
	if cfg.DeliveryTimeout <= 0 {
		return errors.New("DELIVERY_TIMEOUT must be positive")
	}
	if cfg.GatewayScheme != "http" && cfg.GatewayScheme != "https" {
		return fmt.Errorf("GATEWAY_SCHEME must be http or https; got %q", cfg.GatewayScheme)
	}
	if cfg.GatewayStage != "" && cfg.GatewayDomainName == "" {
		return errors.New("GATEWAY_STAGE requires GATEWAY_DOMAIN_NAME")
	}
	if cfg.GatewayDomainName == "" && cfg.RegistryBackend != BackendMemory && !cfg.SingleInstance {
		return errors.New("in-process delivery with a shared registry needs SINGLE_INSTANCE=true or GATEWAY_DOMAIN_NAME")
	}
	if cfg.WebSocketSendRate <= 0 || cfg.WebSocketSendBurst < 1 {
		return errors.New("WS_SEND_RATE and WS_SEND_BURST must be positive")
	}
	if cfg.TriggerRateLimit <= 0 || cfg.TriggerRateBurst < 1 {
		return errors.New("TRIGGER_RATE_LIMIT and TRIGGER_RATE_BURST must be positive")
	}

	return nil
}
