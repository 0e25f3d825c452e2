// Package main is the entrypoint for the PulseBoard API server.
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

	"github.com/kiranshivaraju/pulseboard/internal/api"
	"github.com/kiranshivaraju/pulseboard/internal/api/handler"
	mw "github.com/kiranshivaraju/pulseboard/internal/api/middleware"
	"github.com/kiranshivaraju/pulseboard/internal/auth"
	"github.com/kiranshivaraju/pulseboard/internal/backend"
	"github.com/kiranshivaraju/pulseboard/internal/cache"
	"github.com/kiranshivaraju/pulseboard/internal/config"
	"github.com/kiranshivaraju/pulseboard/internal/metrics"
	"github.com/kiranshivaraju/pulseboard/internal/search"
	"github.com/kiranshivaraju/pulseboard/internal/store"
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
	slog.Info("config loaded", "env", cfg.Server.Env, "backend", cfg.Backend.BaseURL)

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
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
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

	// 5. Create backend client. The backend may come up after us, so a
	// failed readiness probe is only logged.
	client := backend.NewHTTPClient(cfg.Backend.BaseURL,
		backend.StaticToken(cfg.Backend.APIToken),
		cfg.Backend.Timeout,
		backend.WithFallbackNotifier(metrics.RecordFallback),
	)
	if err := client.Ready(ctx); err != nil {
		slog.Warn("backend not ready", "error", err)
	}

	// 6. Build services and router
	pgStore := store.NewPostgresStore(pool)
	router, searchSvc := newHandler(cfg, pgStore, redisCache, client)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// In-flight runs keep writing to Redis and Postgres, so they must finish
	// before the deferred closes run.
	if err := searchSvc.Wait(shutdownCtx); err != nil {
		slog.Warn("search runs still in flight at shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newHandler builds the services and the router over the given dependencies.
// The search service is returned so shutdown can wait for in-flight runs.
func newHandler(cfg *config.Config, st store.Store, ca cache.Cache, client backend.Client) (http.Handler, *search.Service) {
	orch := search.NewOrchestrator(client,
		search.WithPollInterval(cfg.Search.PollInterval),
		search.WithMaxPollAttempts(cfg.Search.MaxPollAttempts),
		search.WithDefaultMaxItems(cfg.Search.MaxItems),
	)
	searchSvc := search.NewService(orch, st, ca, cfg.Search.RunStateTTL)
	authSvc := auth.NewService(st, ca, auth.LogSender{}, cfg.Auth.OTPTTL)
	quota := auth.NewQuota(ca, cfg.Auth.DailySearchQuota)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(ca, cfg.Auth.RequestsPerMinute),
		Quota:     mw.NewQuota(quota),

		HealthHandler: handler.NewHealthHandler(
			handler.HealthCheck{Name: "database", Check: st.Ping},
			handler.HealthCheck{Name: "cache", Check: ca.Ping},
			handler.HealthCheck{Name: "backend", Check: client.Ready},
		),
		MetricsHandler: metrics.Handler(),

		RequestOTPHandler: handler.NewRequestOTPHandler(authSvc),
		VerifyOTPHandler:  handler.NewVerifyOTPHandler(authSvc),
		LogoutHandler:     handler.NewLogoutHandler(st),

		CreateSearchHandler: handler.NewCreateSearchHandler(searchSvc),
		ListSearchesHandler: handler.NewListSearchesHandler(searchSvc),
		GetSearchHandler:    handler.NewGetSearchHandler(searchSvc),
		JobResultsHandler:   handler.NewJobResultsHandler(searchSvc),
		SuggestionsHandler:  handler.NewSuggestionsHandler(client),

		MeHandler:    handler.NewMeHandler(st),
		QuotaHandler: handler.NewQuotaHandler(quota),
	}

	return api.NewRouter(deps), searchSvc
}
