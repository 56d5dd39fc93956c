package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Rrens/devin-relay/internal/domain"
)

// SessionStore keeps sessions in process memory. Nothing survives a restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.UserSession
}

// NewSessionStore creates an empty in-memory store
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.UserSession)}
}

func (s *SessionStore) Get(_ context.Context, userID string) (*domain.UserSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *SessionStore) Set(_ context.Context, userID string, session domain.UserSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.UserID = userID
	s.sessions[userID] = session
	return nil
}

func (s *SessionStore) Exists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[userID]
	return ok, nil
}

func (s *SessionStore) Remove(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[userID]
	delete(s.sessions, userID)
	return ok, nil
}

// ListAll returns all sessions ordered by user ID
func (s *SessionStore) ListAll(_ context.Context) ([]domain.UserSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.UserSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].UserID < sessions[j].UserID })
	return sessions, nil
}

func (s *SessionStore) Ping(context.Context) error { return nil }

func (s *SessionStore) Close() error { return nil }
