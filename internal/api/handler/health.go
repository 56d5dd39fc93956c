package handler

import (
	"context"
	"net/http"

	"github.com/Rrens/devin-relay/internal/api/response"
	"github.com/rs/zerolog/log"
)

// Pinger checks a backend's connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including session store connectivity
func ReadyCheck(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Session store not ready")
			response.ServiceUnavailable(w, "session store not ready")
			return
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}
