package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Daseanle/ai-navigator-pro-sub002/internal/cache"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/config"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/database"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/logging"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/monitoring"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/ratelimit"
	"github.com/Daseanle/ai-navigator-pro-sub002/internal/server"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Msg("Starting AI Navigator API server")

	// Initialize database connection
	db, err := database.New(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Redis backs the trending cache and, when configured, the rate limiter.
	var redis *cache.Redis
	if cfg.Redis.URL != "" {
		redis, err = cache.New(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redis.Close()
	}

	limiter, err := buildLimiter(cfg, redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure rate limiter")
	}

	// Initialize Prometheus metrics
	monitoring.Init()
	log.Info().Msg("Prometheus metrics initialized")

	reportCtx, stopReporting := context.WithCancel(context.Background())
	defer stopReporting()
	go db.ReportPoolMetrics(reportCtx, 15*time.Second)

	// Create and start server
	srv := server.NewAPIServer(cfg, db.Pool, redis, limiter)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("url", cfg.Server.URL).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

// buildLimiter constructs the rate limiter on the configured backend.
// Memory keeps per-instance windows; Redis shares one window across
// instances.
func buildLimiter(cfg *config.Config, redis *cache.Redis) (*ratelimit.Limiter, error) {
	var store ratelimit.Store
	switch cfg.RateLimit.Backend {
	case "redis":
		if redis == nil {
			return nil, fmt.Errorf("rate limit backend is redis but REDIS_URL is not set")
		}
		store = ratelimit.NewRedisStore(redis)
	default:
		store = ratelimit.NewMemoryStore()
	}

	log.Info().
		Str("backend", cfg.RateLimit.Backend).
		Dur("window", cfg.RateLimit.Window).
		Int("max_requests", cfg.RateLimit.MaxRequests).
		Msg("Rate limiter configured")

	return ratelimit.NewLimiter(store, cfg.RateLimit.Window, cfg.RateLimit.MaxRequests), nil
}
