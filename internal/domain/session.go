package domain

import (
	"context"
	"time"
)

// UserSession maps a chat participant to their remote Devin session. The
// JSON field names match records written by earlier deployments of the bot.
type UserSession struct {
	UserID              string    `json:"userId"`
	RemoteSessionID     string    `json:"devinSessionId"`
	RemoteSessionURL    string    `json:"devinSessionUrl"`
	LastInteractionTime time.Time `json:"lastInteractionTime"`
}

// IdleFor returns how long the session has gone without an inbound message
func (s *UserSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastInteractionTime)
}

// SessionStore defines the interface for per-user session storage.
// A user has zero or one session; Set overwrites unconditionally.
type SessionStore interface {
	// Get returns nil without error when the user has no session
	Get(ctx context.Context, userID string) (*UserSession, error)
	Set(ctx context.Context, userID string, session UserSession) error
	Exists(ctx context.Context, userID string) (bool, error)
	// Remove reports whether a session was deleted
	Remove(ctx context.Context, userID string) (bool, error)
	ListAll(ctx context.Context) ([]UserSession, error)
	Ping(ctx context.Context) error
	Close() error
}
