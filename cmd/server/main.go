package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/devin-relay/internal/api"
	"github.com/Rrens/devin-relay/internal/config"
	"github.com/Rrens/devin-relay/internal/devin"
	"github.com/Rrens/devin-relay/internal/logging"
	"github.com/Rrens/devin-relay/internal/repository"
	"github.com/Rrens/devin-relay/internal/service"
	"github.com/Rrens/devin-relay/internal/telegram"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	envLoaded := false
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			envLoaded = true
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	logCloser, err := logging.Setup(cfg.Logging, os.Getenv("ENV") == "production")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logCloser.Close()

	if !envLoaded {
		log.Debug().Msg(".env file not found in any standard location")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Msg("Starting Devin Telegram relay")

	// Initialize storage
	backend, err := repository.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage backend")
	}
	defer backend.Close()
	store := backend.Sessions

	// Initialize clients
	devinClient := devin.NewClient(cfg.Devin)
	bot := telegram.NewBot(cfg.Telegram)

	// Initialize services
	reconciler := service.NewReconciler(service.NewCachedLister(devinClient, backend.ListCache), cfg.Polling.SiblingLimit)
	poller := service.NewPoller(store, devinClient, reconciler, bot, service.PollerConfig{
		Interval:    cfg.Polling.Interval,
		MaxFailures: cfg.Polling.MaxFailures,
		MaxDuration: cfg.Polling.MaxDuration,
		ResumeLimit: cfg.Polling.ResumeTicks,
	})
	lifecycle := service.NewLifecycleService(store, devinClient, poller, reconciler, bot, cfg.Session.IdleTTL)

	// Initialize router
	router := api.NewRouter(cfg, api.Dependencies{
		Store:     store,
		Updates:   backend.Updates,
		Lifecycle: lifecycle,
		Bot:       bot,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// In-flight updates are done; stop background polls before the store closes
	poller.Shutdown()

	log.Info().Msg("Server stopped")
}
