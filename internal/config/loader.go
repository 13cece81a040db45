package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables. A .env file is loaded
// first when present; in container deployments the variables are injected
// directly and the file is simply absent.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logrus.Info("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "file":
		if c.RulesPath == "" {
			return fmt.Errorf("RULES_PATH is required with STORE_DRIVER=file")
		}
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required with STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want file, memory, or postgres)", c.StoreDriver)
	}

	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required with CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want memory or redis)", c.CacheBackend)
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.CacheTTL)
	}
	if c.ActionWorkers < 1 {
		return fmt.Errorf("ACTION_WORKERS must be at least 1, got %d", c.ActionWorkers)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("QUEUE_DEPTH must be at least 1, got %d", c.QueueDepth)
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", c.WebhookTimeout)
	}
	return nil
}
