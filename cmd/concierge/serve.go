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
	"time"

	"github.com/af-corp/concierge/internal/auth"
	"github.com/af-corp/concierge/internal/config"
	"github.com/af-corp/concierge/internal/gateway"
	"github.com/af-corp/concierge/internal/ratelimit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const (
	sessionTTL    = 24 * time.Hour
	sweepInterval = 10 * time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server the messaging transport calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	loader, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := loader.Config()
	logger := setupLogger(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (server will start but transport auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	rdb := connectRedis(cfg.Redis)

	a := newApp(loader, rdb, dbPool)

	restoreCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	a.cooldowns.Restore(restoreCtx, a.providerIDs())
	cancel()

	stopSweep := make(chan struct{})
	go sweepSessions(a, stopSweep)
	defer close(stopSweep)

	limiter := ratelimit.NewLimiter(rdb)
	handler := gateway.NewHandler(gateway.HandlerDeps{
		Service:    a.service,
		Providers:  a.registry,
		Breakers:   a.breakers,
		Cooldowns:  a.cooldowns,
		Limiter:    limiter,
		FloodGuard: func() config.FloodGuardConfig { return loader.Config().FloodGuard },
		Metrics:    a.metrics,
	})
	mux := gateway.NewRouter(handler, gateway.RoutesConfig{
		Version:     version,
		MetricsPath: cfg.Telemetry.MetricsPath,
		Gatherer:    a.promRegistry,
		KeyStore:    auth.NewCachedKeyStore(dbPool, rdb),
		Limiter:     limiter,
		Metrics:     a.metrics,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("concierge starting", "addr", addr, "version", version, "providers", len(a.registry.ListEnabled()))
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("concierge stopped")
	return nil
}

// connectRedis returns nil when Redis is not configured or not reachable;
// every Redis-backed feature then runs in-process or fails open.
func connectRedis(cfg config.RedisConfig) *redis.Client {
	if len(cfg.Addresses) == 0 || cfg.Addresses[0] == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addresses[0],
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Warn("redis not reachable (key cache, flood guard and cooldown mirror disabled)", "error", err)
		rdb.Close()
		return nil
	}
	slog.Info("redis connected")
	return rdb
}

func sweepSessions(a *app, stop <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := a.router.Sweep(sessionTTL); n > 0 {
				slog.Info("idle sessions swept", "count", n)
			}
		case <-stop:
			return
		}
	}
}
