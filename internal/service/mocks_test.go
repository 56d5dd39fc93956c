package service

import (
	"context"
	"sync"

	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockRemoteClient mocks the RemoteSessionClient interface
type MockRemoteClient struct {
	mock.Mock
}

func (m *MockRemoteClient) CreateSession(ctx context.Context, prompt string) (*domain.CreatedSession, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreatedSession), args.Error(1)
}

func (m *MockRemoteClient) SendMessage(ctx context.Context, sessionID, text string) error {
	args := m.Called(ctx, sessionID, text)
	return args.Error(0)
}

func (m *MockRemoteClient) GetSession(ctx context.Context, sessionID string) (*domain.RemoteSessionSnapshot, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RemoteSessionSnapshot), args.Error(1)
}

func (m *MockRemoteClient) ListSessions(ctx context.Context) ([]domain.RemoteSessionSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RemoteSessionSnapshot), args.Error(1)
}

// MockSessionStore mocks the SessionStore interface
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Get(ctx context.Context, userID string) (*domain.UserSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSession), args.Error(1)
}

func (m *MockSessionStore) Set(ctx context.Context, userID string, session domain.UserSession) error {
	args := m.Called(ctx, userID, session)
	return args.Error(0)
}

func (m *MockSessionStore) Exists(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionStore) Remove(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionStore) ListAll(ctx context.Context) ([]domain.UserSession, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.UserSession), args.Error(1)
}

func (m *MockSessionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockSnapshotCache mocks the SnapshotCache interface
type MockSnapshotCache struct {
	mock.Mock
}

func (m *MockSnapshotCache) Get(ctx context.Context) ([]domain.RemoteSessionSnapshot, bool, error) {
	args := m.Called(ctx)
	snaps, _ := args.Get(0).([]domain.RemoteSessionSnapshot)
	return snaps, args.Bool(1), args.Error(2)
}

func (m *MockSnapshotCache) Set(ctx context.Context, snapshots []domain.RemoteSessionSnapshot) error {
	args := m.Called(ctx, snapshots)
	return args.Error(0)
}

type sentMessage struct {
	ChatID int64
	Text   string
}

// recordingNotifier captures outgoing chat messages
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) SendMessage(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (n *recordingNotifier) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Text)
	}
	return out
}

func (n *recordingNotifier) last() string {
	texts := n.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}
