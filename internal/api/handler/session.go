package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rrens/devin-relay/internal/api/response"
	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/Rrens/devin-relay/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// SessionLifecycle is the part of the lifecycle service exposed to operators
type SessionLifecycle interface {
	Status(ctx context.Context, userID string) (*service.SessionStatus, error)
	Reset(ctx context.Context, userID string) (bool, error)
}

// SessionHandler serves the admin session endpoints
type SessionHandler struct {
	store     domain.SessionStore
	lifecycle SessionLifecycle
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(store domain.SessionStore, lifecycle SessionLifecycle) *SessionHandler {
	return &SessionHandler{store: store, lifecycle: lifecycle}
}

// List returns every stored session
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListAll(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		response.ServiceUnavailable(w, "session store unavailable")
		return
	}
	if sessions == nil {
		sessions = []domain.UserSession{}
	}

	response.OK(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Get returns the live status of one user's session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	status, err := h.lifecycle.Status(r.Context(), userID)
	switch {
	case err == nil:
		response.OK(w, status)
	case errors.Is(err, domain.ErrNoActiveSession):
		response.NotFound(w, "no active session")
	case domain.IsStoreUnavailable(err):
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to read session")
		response.ServiceUnavailable(w, "session store unavailable")
	default:
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch remote session")
		response.BadGateway(w, "failed to fetch remote session")
	}
}

// Delete clears one user's session
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	removed, err := h.lifecycle.Reset(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to clear session")
		response.ServiceUnavailable(w, "session store unavailable")
		return
	}
	if !removed {
		response.NotFound(w, "no active session")
		return
	}

	response.NoContent(w)
}
