// Package config holds service configuration parsed from environment
// variables, with an optional .env file for local development.
package config

import "time"

// Config is the full service configuration.
type Config struct {
	// Server
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	AppName  string `env:"APP_NAME" envDefault:"events-manager"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Rule store: file, memory, or postgres.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"file"`
	RulesPath   string `env:"RULES_PATH" envDefault:"config/rules.yaml"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	// Rule cache: memory or redis.
	CacheBackend  string        `env:"CACHE_BACKEND" envDefault:"memory"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`

	// Engine
	AsyncActions          bool          `env:"ASYNC_ACTIONS" envDefault:"false"`
	ActionWorkers         int           `env:"ACTION_WORKERS" envDefault:"4"`
	QueueDepth            int           `env:"QUEUE_DEPTH" envDefault:"64"`
	StopOnCriticalFailure bool          `env:"STOP_ON_CRITICAL_FAILURE" envDefault:"false"`
	WebhookTimeout        time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`
}
