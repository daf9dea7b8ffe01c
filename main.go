package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frateto/gateway/agent"
	"github.com/frateto/gateway/api"
	"github.com/frateto/gateway/config"
	"github.com/frateto/gateway/queryguard"
	"github.com/frateto/gateway/ratelimit"
	"github.com/frateto/gateway/session"
	"github.com/frateto/gateway/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Int("httpPort", cfg.HTTPPort).
		Str("database", cfg.DatabaseURL).
		Str("agentUrl", cfg.AgentURL).
		Int("maxSessions", cfg.MaxSessions).
		Msg("starting gateway")

	// Read-only dataset
	executor, err := store.NewExecutor(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open dataset")
	}
	defer executor.Close()

	// Query guard
	guard, err := queryguard.NewGuard(context.Background(), cfg.DefaultRowLimit, cfg.MaxRowLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize query guard")
	}

	registry := session.New(cfg.MaxSessions, cfg.SessionTTL)
	limiter := ratelimit.New(cfg.MaxRequestsPerWindow, cfg.Window)
	producer := agent.NewClient(cfg.AgentURL, cfg.AgentAPIKey, cfg.AgentModel, cfg.AgentTimeout)

	h := api.NewHandler(cfg, registry, limiter, guard, executor, producer)

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	// Background sweep with its own cancellation handle.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if n := registry.Sweep(time.Now()); n > 0 {
					log.Info().Int("evicted", n).Int("liveSessions", registry.Len()).Msg("session sweep")
				}
				if n := limiter.Sweep(time.Now()); n > 0 {
					log.Debug().Int("dropped", n).Msg("rate window sweep")
				}
			}
		}
	}()

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	log.Info().Int("port", cfg.HTTPPort).Msg("gateway started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down gateway")
	stopSweep()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server gracefully")
	}

	log.Info().Msg("gateway stopped")
}
