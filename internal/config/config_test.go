package config

import (
	"testing"
	"time"
)

func defaults() *Config {
	return &Config{
		HTTPAddr:       ":8080",
		AppName:        "events-manager",
		LogLevel:       "info",
		StoreDriver:    "file",
		RulesPath:      "config/rules.yaml",
		CacheBackend:   "memory",
		CacheTTL:       time.Hour,
		ActionWorkers:  4,
		QueueDepth:     64,
		WebhookTimeout: 30 * time.Second,
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store driver", func(c *Config) { c.StoreDriver = "s3" }},
		{"file store without path", func(c *Config) { c.RulesPath = "" }},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = "postgres" }},
		{"unknown cache backend", func(c *Config) { c.CacheBackend = "memcached" }},
		{"redis without addr", func(c *Config) { c.CacheBackend = "redis"; c.RedisAddr = "" }},
		{"non-positive ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"zero workers", func(c *Config) { c.ActionWorkers = 0 }},
		{"zero queue depth", func(c *Config) { c.QueueDepth = 0 }},
		{"zero webhook timeout", func(c *Config) { c.WebhookTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaults()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateAcceptedVariants(t *testing.T) {
	c := defaults()
	c.StoreDriver = "postgres"
	c.PostgresDSN = "postgres://localhost/events?sslmode=disable"
	c.CacheBackend = "redis"
	c.RedisAddr = "localhost:6379"
	if err := c.Validate(); err != nil {
		t.Fatalf("postgres+redis config should validate: %v", err)
	}
}
