// Command flagward runs the feature flag service: the admin REST API, the
// evaluation engine with its read-through cache, the scheduled-state
// reconciler, and the observability server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/veigo-labs/flagward/internal/adminapi"
	"github.com/veigo-labs/flagward/internal/cache"
	"github.com/veigo-labs/flagward/internal/config"
	"github.com/veigo-labs/flagward/internal/database"
	"github.com/veigo-labs/flagward/internal/eval"
	"github.com/veigo-labs/flagward/internal/flag"
	"github.com/veigo-labs/flagward/internal/logger"
	"github.com/veigo-labs/flagward/internal/observability"
	"github.com/veigo-labs/flagward/internal/reconciler"
	"github.com/veigo-labs/flagward/internal/ruleengine"
	"github.com/veigo-labs/flagward/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wallClock := clock.New()

	// Persistence. Postgres in any real deployment; the in-memory store
	// keeps local development dependency-free.
	var (
		flagStore store.FlagStore
		checkers  []observability.Checker
	)
	if cfg.Database.IsConfigured() {
		pool, err := database.NewPostgresPool(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		pgStore := store.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		flagStore = pgStore
		checkers = append(checkers, database.NewChecker(pool))
	} else {
		if cfg.App.Environment == config.EnvironmentProduction {
			return errors.New("database must be configured in production environment")
		}
		log.Warn("no database configured, using in-memory flag store")
		flagStore = store.NewMemoryStore()
	}

	flagCache, err := cache.New(flagStore, cfg.Cache.Capacity, cfg.Cache.TTL, wallClock)
	if err != nil {
		return fmt.Errorf("failed to create flag cache: %w", err)
	}
	defer flagCache.Close()

	ambientEnv := flag.Environment(cfg.App.Environment)
	engine := ruleengine.New(log)
	evalSvc := eval.New(log, flagCache, flagStore, engine, ambientEnv, wallClock)

	// Redis backs only the reconciler leader lease. Without it a single
	// replica reconciles with a no-op lock.
	var leaderLock reconciler.LeaderLock = reconciler.NoopLock{}
	if cfg.Redis.IsConfigured() {
		redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		leaderLock = reconciler.NewRedisLock(redisClient, cfg.Reconciler.LeaseKey, cfg.Reconciler.LeaseTTL)
		checkers = append(checkers, cache.NewRedisChecker(redisClient))
	}

	if cfg.Reconciler.Enabled {
		runner := reconciler.NewRunner(log, reconciler.Config{
			Interval:    cfg.Reconciler.Interval,
			Environment: ambientEnv,
		}, flagStore, flagCache, leaderLock, wallClock)

		go func() {
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("reconciler stopped", slog.String("error", err.Error()))
			}
		}()
	}

	obsServer := observability.NewServer(log, &cfg.Observability, checkers...)
	obsServer.Start()

	api := adminapi.NewAPI(log, flagStore, flagCache, evalSvc, cfg.Admin.APIKeyHash, cfg.Admin.SkipAuth)
	adminServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Admin.Port),
		Handler:      api.Router,
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
		IdleTimeout:  cfg.Admin.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting admin server", slog.String("addr", adminServer.Addr))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("admin server failed: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	log.Info("shutdown complete")
	return nil
}
