// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the portal's runtime configuration, read from the environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	Store       string `env:"PORTAL_STORE" envDefault:"memory"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionIssuer string        `env:"SESSION_ISSUER" envDefault:"memberportal"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"12h"`

	ProfileServiceURL  string        `env:"PROFILE_SERVICE_URL" envDefault:"http://localhost:8081"`
	DocumentServiceURL string        `env:"DOCUMENT_SERVICE_URL" envDefault:"http://localhost:8082"`
	ClientTimeout      time.Duration `env:"CLIENT_TIMEOUT" envDefault:"5s"`

	AMQPURL     string `env:"AMQP_URL"`
	NotifyQueue string `env:"NOTIFY_QUEUE" envDefault:"portal.notifications"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	ReadRetryMaxTries        uint          `env:"READ_RETRY_MAX_TRIES" envDefault:"3"`
	ReadRetryInitialInterval time.Duration `env:"READ_RETRY_INITIAL_INTERVAL" envDefault:"50ms"`
}

// Load parses the environment and checks the combinations the portal cannot run with.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when PORTAL_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown PORTAL_STORE %q", c.Store)
	}
	if len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 bytes")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}
