package api

import (
	"net/http"

	"github.com/Rrens/devin-relay/internal/api/handler"
	customMiddleware "github.com/Rrens/devin-relay/internal/api/middleware"
	"github.com/Rrens/devin-relay/internal/config"
	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Lifecycle is what the HTTP layer needs from the session lifecycle
type Lifecycle interface {
	handler.Dispatcher
	handler.SessionLifecycle
}

// Dependencies are the components the router serves
type Dependencies struct {
	Store     domain.SessionStore
	Lifecycle Lifecycle
	Bot       handler.BotInfo

	// Updates is optional; nil handles every delivery
	Updates domain.UpdateDeduper
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	webhookHandler := handler.NewWebhookHandler(deps.Lifecycle, deps.Bot, deps.Updates, cfg.Server.UpdateTimeout)
	sessionHandler := handler.NewSessionHandler(deps.Store, deps.Lifecycle)

	// Telegram webhook
	r.Post("/api/telegram", webhookHandler.Receive)
	r.Get("/api/telegram", webhookHandler.Info)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Store))

		if cfg.Admin.Token == "" {
			log.Info().Msg("Admin token not set, session endpoints disabled")
			return
		}

		// Admin routes
		adminAuth := customMiddleware.NewAdminAuth(cfg.Admin.Token)
		r.Group(func(r chi.Router) {
			r.Use(adminAuth.Authenticate)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Get("/{userID}", sessionHandler.Get)
				r.Delete("/{userID}", sessionHandler.Delete)
			})
		})
	})

	return r
}
