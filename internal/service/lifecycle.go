package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionState is the per-user lifecycle state
type SessionState string

const (
	StateNoSession SessionState = "NO_SESSION"
	StateActive    SessionState = "ACTIVE"
)

// Inbound is one text or command event from a chat participant
type Inbound struct {
	UserID string
	ChatID int64
	Text   string
}

// HandlerFunc handles one inbound event
type HandlerFunc func(ctx context.Context, in Inbound)

// SessionStatus is the live view of a user's session
type SessionStatus struct {
	Session  domain.UserSession             `json:"session"`
	Remote   domain.RemoteSessionSnapshot   `json:"remote"`
	Siblings []domain.RemoteSessionSnapshot `json:"siblings,omitempty"`
}

// LifecycleService moves users between NO_SESSION and ACTIVE and turns
// every failure into a chat reply.
type LifecycleService struct {
	store      domain.SessionStore
	remote     domain.RemoteSessionClient
	poller     *Poller
	reconciler *Reconciler
	notifier   Notifier
	idleTTL    time.Duration
	now        func() time.Time
	locks      *keyedMutex
}

// NewLifecycleService creates a new lifecycle service. A zero idleTTL keeps
// sessions active until the user resets them.
func NewLifecycleService(
	store domain.SessionStore,
	remote domain.RemoteSessionClient,
	poller *Poller,
	reconciler *Reconciler,
	notifier Notifier,
	idleTTL time.Duration,
) *LifecycleService {
	return &LifecycleService{
		store:      store,
		remote:     remote,
		poller:     poller,
		reconciler: reconciler,
		notifier:   notifier,
		idleTTL:    idleTTL,
		now:        time.Now,
		locks:      newKeyedMutex(),
	}
}

// Handlers returns the command handlers keyed by command name
func (s *LifecycleService) Handlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"start":  s.HandleStart,
		"help":   s.HandleHelp,
		"status": s.HandleStatus,
		"new":    s.HandleNew,
		"reset":  s.HandleReset,
	}
}

// Dispatch routes an inbound event to its command handler, or to the text
// handler when it is not a known command.
func (s *LifecycleService) Dispatch(ctx context.Context, in Inbound) {
	if strings.TrimSpace(in.Text) == "" || in.UserID == "" {
		return
	}

	if name, ok := parseCommand(in.Text); ok {
		if handler, ok := s.Handlers()[name]; ok {
			handler(ctx, in)
			return
		}
	}
	s.HandleText(ctx, in)
}

// parseCommand extracts "status" from "/Status@my_bot args"
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", false
	}
	command, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(command), command != ""
}

// State reports whether the user currently has a session
func (s *LifecycleService) State(ctx context.Context, userID string) (SessionState, error) {
	exists, err := s.store.Exists(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to check session: %w", err)
	}
	if exists {
		return StateActive, nil
	}
	return StateNoSession, nil
}

// HandleStart sends the welcome text
func (s *LifecycleService) HandleStart(ctx context.Context, in Inbound) {
	s.reply(ctx, in, msgWelcome)
}

// HandleHelp sends the command overview
func (s *LifecycleService) HandleHelp(ctx context.Context, in Inbound) {
	s.reply(ctx, in, msgHelp)
}

// HandleText creates a session for a user without one, otherwise forwards
// the text to the active session.
func (s *LifecycleService) HandleText(ctx context.Context, in Inbound) {
	unlock := s.locks.Lock(in.UserID)
	defer unlock()

	session, err := s.store.Get(ctx, in.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to load session")
		s.reply(ctx, in, msgStoreUnavailable)
		return
	}

	if session != nil && s.expired(session) {
		if err := s.expire(ctx, in, session); err != nil {
			log.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to expire idle session")
			s.reply(ctx, in, msgStoreUnavailable)
			return
		}
		session = nil
	}

	if session == nil {
		s.createSession(ctx, in)
		return
	}
	s.forward(ctx, in, session)
}

func (s *LifecycleService) expired(session *domain.UserSession) bool {
	return s.idleTTL > 0 && session.IdleFor(s.now()) > s.idleTTL
}

func (s *LifecycleService) expire(ctx context.Context, in Inbound, session *domain.UserSession) error {
	if _, err := s.store.Remove(ctx, in.UserID); err != nil {
		return err
	}
	s.poller.Cancel(in.UserID)

	log.Info().
		Str("user_id", in.UserID).
		Str("session_id", session.RemoteSessionID).
		Dur("idle", session.IdleFor(s.now())).
		Msg("Idle session expired")
	s.reply(ctx, in, msgSessionExpired)
	return nil
}

func (s *LifecycleService) createSession(ctx context.Context, in Inbound) {
	s.reply(ctx, in, msgCreating)

	created, err := s.remote.CreateSession(ctx, in.Text)
	if err != nil {
		log.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to create remote session")
		s.reply(ctx, in, msgCreateFailed)
		return
	}

	session := domain.UserSession{
		UserID:              in.UserID,
		RemoteSessionID:     created.SessionID,
		RemoteSessionURL:    created.URL,
		LastInteractionTime: s.now(),
	}
	if err := s.store.Set(ctx, in.UserID, session); err != nil {
		log.Error().Err(err).
			Str("user_id", in.UserID).
			Str("session_id", created.SessionID).
			Msg("Failed to store new session")
		s.reply(ctx, in, msgStoreUnavailable)
		return
	}

	log.Info().
		Str("user_id", in.UserID).
		Str("session_id", created.SessionID).
		Bool("is_new", created.IsNew).
		Msg("Session created")
	s.reply(ctx, in, fmt.Sprintf(msgSessionCreated, created.URL))

	s.poller.Start(PollRequest{
		Key:    PollKey{UserID: in.UserID, SessionID: created.SessionID},
		ChatID: in.ChatID,
	})
}

func (s *LifecycleService) forward(ctx context.Context, in Inbound, session *domain.UserSession) {
	// The message counts as an interaction whether or not Devin accepts it
	updated := *session
	updated.LastInteractionTime = s.now()
	if err := s.store.Set(ctx, in.UserID, updated); err != nil {
		log.Warn().Err(err).Str("user_id", in.UserID).Msg("Failed to update last interaction time")
	}

	// The poll diffs against the state from before the message so a quick
	// round trip back to the same status is still reported
	baseline, err := s.remote.GetSession(ctx, session.RemoteSessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.RemoteSessionID).Msg("Failed to fetch session state before forwarding")
		baseline = nil
	}

	if err := s.remote.SendMessage(ctx, session.RemoteSessionID, in.Text); err != nil {
		log.Error().Err(err).
			Str("user_id", in.UserID).
			Str("session_id", session.RemoteSessionID).
			Msg("Failed to forward message")
		s.reply(ctx, in, msgSendFailed)
		return
	}

	s.reply(ctx, in, msgMessageSent)

	s.poller.Start(PollRequest{
		Key:      PollKey{UserID: in.UserID, SessionID: session.RemoteSessionID},
		ChatID:   in.ChatID,
		Resumed:  true,
		Baseline: baseline,
	})
}

// Status fetches the live state of the user's session. It returns
// domain.ErrNoActiveSession when the user has none.
func (s *LifecycleService) Status(ctx context.Context, userID string) (*SessionStatus, error) {
	exists, err := s.store.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if !exists {
		return nil, domain.ErrNoActiveSession
	}

	session, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrNoActiveSession
	}

	snap, err := s.remote.GetSession(ctx, session.RemoteSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session %s: %w", session.RemoteSessionID, err)
	}

	return &SessionStatus{
		Session:  *session,
		Remote:   *snap,
		Siblings: s.reconciler.Siblings(ctx, session.RemoteSessionID),
	}, nil
}

// HandleStatus replies with the live state of the user's session
func (s *LifecycleService) HandleStatus(ctx context.Context, in Inbound) {
	status, err := s.Status(ctx, in.UserID)
	switch {
	case err == nil:
		s.reply(ctx, in, s.renderStatus(status))
	case errors.Is(err, domain.ErrNoActiveSession):
		log.Debug().Str("user_id", in.UserID).Msg("Status requested without a session")
		s.reply(ctx, in, msgNoActiveSession)
	case domain.IsStoreUnavailable(err):
		log.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to read session for status")
		s.reply(ctx, in, msgStoreUnavailable)
	default:
		log.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to get session status")
		s.reply(ctx, in, msgStatusFailed)
	}
}

func (s *LifecycleService) renderStatus(status *SessionStatus) string {
	var b strings.Builder

	created := "unknown"
	if !status.Remote.CreatedAt.IsZero() {
		created = status.Remote.CreatedAt.Local().Format("2006-01-02 15:04:05")
	}

	b.WriteString("📊 Session Status\n\n")
	fmt.Fprintf(&b, "ID: %s\n", status.Session.RemoteSessionID)
	fmt.Fprintf(&b, "Status: %s\n", status.Remote.StatusText)
	fmt.Fprintf(&b, "Last interaction: %s\n", timeAgo(status.Session.IdleFor(s.now())))
	fmt.Fprintf(&b, "Created: %s\n\n", created)
	fmt.Fprintf(&b, "🔗 View in browser: %s\n\n", status.Session.RemoteSessionURL)
	if status.Remote.PullRequestURL != "" {
		fmt.Fprintf(&b, "🔀 Pull request: %s\n\n", status.Remote.PullRequestURL)
	}

	if isAbsent(status.Remote.StructuredOutput) {
		b.WriteString("No structured output available yet.")
	} else {
		b.WriteString("📝 Latest output:\n\n")
		b.WriteString(FormatStructuredOutput(status.Remote.StructuredOutput))
	}

	if len(status.Siblings) > 0 {
		b.WriteString("\n\n")
		b.WriteString(formatSiblings(status.Siblings))
	}
	return b.String()
}

// Reset drops the user's session and stops its poll. It reports whether a
// session existed.
func (s *LifecycleService) Reset(ctx context.Context, userID string) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	removed, err := s.store.Remove(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove session: %w", err)
	}
	s.poller.Cancel(userID)

	if removed {
		log.Info().Str("user_id", userID).Msg("Session cleared")
	}
	return removed, nil
}

// HandleNew clears any session so the next text starts a fresh one
func (s *LifecycleService) HandleNew(ctx context.Context, in Inbound) {
	if _, err := s.Reset(ctx, in.UserID); err != nil {
		log.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to clear session")
		s.reply(ctx, in, msgStoreUnavailable)
		return
	}
	s.reply(ctx, in, msgReady)
}

// HandleReset clears the session and says whether there was one
func (s *LifecycleService) HandleReset(ctx context.Context, in Inbound) {
	removed, err := s.Reset(ctx, in.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to reset session")
		s.reply(ctx, in, msgStoreUnavailable)
		return
	}
	if removed {
		s.reply(ctx, in, msgReset)
		return
	}
	s.reply(ctx, in, msgResetNoSession)
}

func (s *LifecycleService) reply(ctx context.Context, in Inbound, text string) {
	if err := s.notifier.SendMessage(ctx, in.ChatID, text); err != nil {
		log.Error().Err(err).Str("user_id", in.UserID).Int64("chat_id", in.ChatID).Msg("Failed to send reply")
	}
}
