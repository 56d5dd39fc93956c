package devin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Rrens/devin-relay/internal/config"
	"github.com/Rrens/devin-relay/internal/domain"
)

const maxErrorBody = 4096

// Client implements domain.RemoteSessionClient against the Devin v1 API.
// It holds no per-session state and never retries.
type Client struct {
	apiKey     string
	baseURL    string
	idempotent bool
	listLimit  int
	client     *http.Client
}

// NewClient creates a new Devin API client
func NewClient(cfg config.DevinConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	listLimit := cfg.ListLimit
	if listLimit <= 0 {
		listLimit = 20
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		idempotent: cfg.Idempotent,
		listLimit:  listLimit,
		client:     &http.Client{Timeout: timeout},
	}
}

type createSessionRequest struct {
	Prompt     string `json:"prompt"`
	Idempotent bool   `json:"idempotent"`
}

type createSessionResponse struct {
	SessionID    string `json:"session_id"`
	URL          string `json:"url"`
	IsNewSession *bool  `json:"is_new_session,omitempty"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type pullRequest struct {
	URL string `json:"url"`
}

type sessionDetails struct {
	SessionID        string       `json:"session_id"`
	Status           string       `json:"status"`
	StatusEnum       *string      `json:"status_enum"`
	Title            *string      `json:"title"`
	CreatedAt        timestamp    `json:"created_at"`
	UpdatedAt        timestamp    `json:"updated_at"`
	PullRequest      *pullRequest `json:"pull_request"`
	StructuredOutput any          `json:"structured_output"`
}

type listSessionsResponse struct {
	Sessions []sessionDetails `json:"sessions"`
}

// CreateSession opens a new Devin session seeded with prompt
func (c *Client) CreateSession(ctx context.Context, prompt string) (*domain.CreatedSession, error) {
	var resp createSessionResponse
	req := createSessionRequest{Prompt: prompt, Idempotent: c.idempotent}
	if err := c.do(ctx, "create session", http.MethodPost, "/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("create session: response has no session_id")
	}

	isNew := true
	if resp.IsNewSession != nil {
		isNew = *resp.IsNewSession
	}
	return &domain.CreatedSession{SessionID: resp.SessionID, URL: resp.URL, IsNew: isNew}, nil
}

// SendMessage posts text to an existing session
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) error {
	path := "/session/" + url.PathEscape(sessionID) + "/message"
	return c.do(ctx, "send message", http.MethodPost, path, sendMessageRequest{Message: text}, nil)
}

// GetSession fetches the current state of a session
func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.RemoteSessionSnapshot, error) {
	var details sessionDetails
	if err := c.do(ctx, "get session", http.MethodGet, "/session/"+url.PathEscape(sessionID), nil, &details); err != nil {
		return nil, err
	}
	snapshot := details.snapshot()
	return &snapshot, nil
}

// ListSessions returns the most recent sessions visible to the API key
func (c *Client) ListSessions(ctx context.Context) ([]domain.RemoteSessionSnapshot, error) {
	var resp listSessionsResponse
	path := "/sessions?limit=" + strconv.Itoa(c.listLimit)
	if err := c.do(ctx, "list sessions", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	snapshots := make([]domain.RemoteSessionSnapshot, 0, len(resp.Sessions))
	for _, d := range resp.Sessions {
		snapshots = append(snapshots, d.snapshot())
	}
	return snapshots, nil
}

func (d sessionDetails) snapshot() domain.RemoteSessionSnapshot {
	s := domain.RemoteSessionSnapshot{
		SessionID:        d.SessionID,
		StatusText:       d.Status,
		StatusCategory:   domain.ParseStatusCategory(d.Status),
		CreatedAt:        time.Time(d.CreatedAt),
		UpdatedAt:        time.Time(d.UpdatedAt),
		StructuredOutput: d.StructuredOutput,
	}
	// status_enum is authoritative; the free-form status is a fallback
	if d.StatusEnum != nil {
		s.StatusCategory = domain.ParseStatusCategory(*d.StatusEnum)
	}
	if d.Title != nil {
		s.Title = *d.Title
	}
	if d.PullRequest != nil {
		s.PullRequestURL = d.PullRequest.URL
	}
	return s
}

// do sends a JSON request and decodes a JSON response into out, if non-nil
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.RemoteAPIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
