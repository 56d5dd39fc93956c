package domain

import (
	"context"
	"strings"
	"time"
)

// StatusCategory is the coarse lifecycle bucket of a remote session
type StatusCategory string

const (
	StatusRunning StatusCategory = "RUNNING"
	StatusBlocked StatusCategory = "BLOCKED"
	StatusStopped StatusCategory = "STOPPED"
	StatusUnknown StatusCategory = "UNKNOWN"
)

// ParseStatusCategory normalizes a status enum reported by the remote API
func ParseStatusCategory(raw string) StatusCategory {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running", "working":
		return StatusRunning
	case "blocked":
		return StatusBlocked
	case "stopped", "finished", "expired", "suspended":
		return StatusStopped
	default:
		return StatusUnknown
	}
}

// IsTerminal reports whether the session stopped or is waiting on the user
func (c StatusCategory) IsTerminal() bool {
	return c == StatusStopped || c == StatusBlocked
}

// RemoteSessionSnapshot is the state of a remote session at fetch time
type RemoteSessionSnapshot struct {
	SessionID        string         `json:"session_id"`
	StatusText       string         `json:"status"`
	StatusCategory   StatusCategory `json:"status_category"`
	Title            string         `json:"title,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	StructuredOutput any            `json:"structured_output,omitempty"`
	PullRequestURL   string         `json:"pull_request_url,omitempty"`
}

// CreatedSession is returned by the remote API for a newly opened session
type CreatedSession struct {
	SessionID string
	URL       string
	IsNew     bool
}

// RemoteSessionClient defines the operations of the remote agent API
type RemoteSessionClient interface {
	CreateSession(ctx context.Context, prompt string) (*CreatedSession, error)
	SendMessage(ctx context.Context, sessionID, text string) error
	GetSession(ctx context.Context, sessionID string) (*RemoteSessionSnapshot, error)
	ListSessions(ctx context.Context) ([]RemoteSessionSnapshot, error)
}
