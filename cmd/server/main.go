package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/st693ava/filament-events-manager-sub000/internal/action"
	"github.com/st693ava/filament-events-manager-sub000/internal/api"
	"github.com/st693ava/filament-events-manager-sub000/internal/cache"
	"github.com/st693ava/filament-events-manager-sub000/internal/config"
	"github.com/st693ava/filament-events-manager-sub000/internal/engine"
	"github.com/st693ava/filament-events-manager-sub000/internal/rule"
	"github.com/st693ava/filament-events-manager-sub000/internal/template"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("unknown log level %q, using info", cfg.LogLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, stopWatch := buildStore(cfg)
	defer stopWatch()

	rules := buildCache(cfg, store)

	renderer := template.NewRenderer(cfg.AppName)
	reg := action.NewRegistry()
	reg.Register(action.NewEmail(logMailer{}, renderer))
	reg.Register(action.NewWebhook(&http.Client{}, renderer).WithTimeout(cfg.WebhookTimeout))
	reg.Register(action.NewNotification(logDispatcher{}, renderer))
	reg.Register(action.NewActivityLog(logActivity{}, renderer))

	eng := engine.New(ctx, rules, reg, nil, nil, engine.Options{
		AsyncActions:          cfg.AsyncActions,
		ActionWorkers:         cfg.ActionWorkers,
		QueueDepth:            cfg.QueueDepth,
		StopOnCriticalFailure: cfg.StopOnCriticalFailure,
	})

	// Rules-file hot reload flushes the cache so the next event sees the new
	// rule set.
	if fs, ok := store.(*rule.FileStore); ok {
		fs.OnReload(func() {
			rules.InvalidateAll()
			logrus.Info("rules reloaded, cache flushed")
		})
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.New(eng, store, renderer),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel()
	eng.Shutdown()
	logrus.Info("goodbye")
}

func buildStore(cfg *config.Config) (rule.Store, func()) {
	switch cfg.StoreDriver {
	case "file":
		fs, err := rule.NewFileStore(cfg.RulesPath)
		if err != nil {
			logrus.Fatalf("rule store: %v", err)
		}
		stop, err := fs.Watch()
		if err != nil {
			logrus.Warnf("rules watcher unavailable (hot reload disabled): %v", err)
			return fs, func() {}
		}
		return fs, stop
	case "postgres":
		ps, err := rule.OpenPostgresStore(cfg.PostgresDSN)
		if err != nil {
			logrus.Fatalf("rule store: %v", err)
		}
		return ps, func() {}
	case "memory":
		return rule.NewMemoryStore(), func() {}
	default:
		logrus.Fatalf("unknown store driver %q", cfg.StoreDriver)
		return nil, nil
	}
}

func buildCache(cfg *config.Config, store rule.Store) cache.Provider {
	if cfg.CacheBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return cache.NewRedis(store, client, cfg.CacheTTL)
	}
	return cache.NewMemory(store, cfg.CacheTTL)
}

// Placeholder collaborators: deployments integrate their own mail transport,
// notification channels, and activity store by swapping these out. Each one
// logs the payload so the pipeline stays observable out of the box.

type logMailer struct{}

func (logMailer) Send(_ context.Context, msg action.Message) error {
	logrus.WithFields(logrus.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email dispatched")
	return nil
}

type logDispatcher struct{}

func (logDispatcher) Dispatch(_ context.Context, rcpt action.Recipient, p action.Payload) error {
	logrus.WithFields(logrus.Fields{
		"user_id": rcpt.UserID,
		"email":   rcpt.Email,
		"channel": p.Channel,
		"title":   p.Title,
	}).Info("notification dispatched")
	return nil
}

type logActivity struct{}

func (logActivity) Log(_ context.Context, entry action.LogEntry) error {
	logrus.WithFields(logrus.Fields{
		"log_name":    entry.LogName,
		"description": entry.Description,
		"event":       entry.EventName,
	}).Info("activity recorded")
	return nil
}
