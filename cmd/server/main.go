// Package main is the entrypoint for the pcvgate API server.
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

	"github.com/sajagana/pcvgate/internal/api"
	"github.com/sajagana/pcvgate/internal/api/handler"
	mw "github.com/sajagana/pcvgate/internal/api/middleware"
	"github.com/sajagana/pcvgate/internal/api/response"
	"github.com/sajagana/pcvgate/internal/cache"
	"github.com/sajagana/pcvgate/internal/config"
	"github.com/sajagana/pcvgate/internal/nd"
	"github.com/sajagana/pcvgate/internal/pcv"
	"github.com/sajagana/pcvgate/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "insights_url", cfg.Insights.BaseURL, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create Insights client and orchestrator
	ndClient := nd.NewHTTPClient(nd.Options{
		BaseURL:     cfg.Insights.BaseURL,
		Username:    cfg.Insights.Username,
		Password:    cfg.Insights.Password,
		LoginDomain: cfg.Insights.LoginDomain,
		APIPrefix:   cfg.Insights.APIPrefix,
		Timeout:     cfg.Insights.Timeout,
		Insecure:    cfg.Insights.Insecure,
	})

	// 6. Create store
	pgStore := store.NewPostgresStore(pool)

	orch := pcv.New(ndClient, redisCache, pcv.Options{
		PollInterval:    cfg.PCV.PollInterval,
		PollMaxInterval: cfg.PCV.PollMaxInterval,
		WaitTimeout:     cfg.PCV.WaitTimeout,
		EpochCacheTTL:   cfg.PCV.EpochCacheTTL,
	})

	// 7. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	validations := handler.NewValidationHandler(orch, pgStore, cfg.PCV.UploadDir)
	runs := handler.NewRunsHandler(pgStore)
	keys := handler.NewKeysHandler(pgStore)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache, ndClient),

		ListValidations:  validations.List,
		CreateValidation: validations.Create,
		DeleteValidation: validations.Delete,
		WaitValidation:   validations.Wait,

		ListRuns: runs.List,

		CreateKeyHandler: keys.Create,
		ListKeysHandler:  keys.List,
		RevokeKeyHandler: keys.Revoke,
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server. WriteTimeout must outlast the wait deadline or
	// the wait endpoint gets cut off mid-poll.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PCV.WaitTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database, cache, and Insights connectivity.
func healthHandler(s store.Store, c cache.Cache, insights nd.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"insights": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := insights.Ping(r.Context()); err != nil {
			checks["insights"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		// A degraded Insights connection is reported but does not fail the
		// probe; the server itself is still serving.
		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
