package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/Rrens/devin-relay/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pollerFixture struct {
	poller   *Poller
	store    *memory.SessionStore
	remote   *MockRemoteClient
	notifier *recordingNotifier
}

func newPollerFixture(t *testing.T, cfg PollerConfig) *pollerFixture {
	t.Helper()

	store := memory.NewSessionStore()
	remote := new(MockRemoteClient)
	notifier := &recordingNotifier{}
	poller := NewPoller(store, remote, NewReconciler(nil, 0), notifier, cfg)
	t.Cleanup(poller.Shutdown)

	require.NoError(t, store.Set(context.Background(), "42", domain.UserSession{
		UserID:           "42",
		RemoteSessionID:  "devin-1",
		RemoteSessionURL: sessionURL,
	}))

	return &pollerFixture{poller: poller, store: store, remote: remote, notifier: notifier}
}

func (f *pollerFixture) waitIdle(t *testing.T, userID string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		_, ok := f.poller.Active(userID)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

var pollKey = PollKey{UserID: "42", SessionID: "devin-1"}

func TestPoller_StopsOnTerminalStatus(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3})

	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("running", nil), nil).Once()
	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("running", "halfway"), nil).Once()
	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("stopped", "done"), nil)

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	f.waitIdle(t, "42")

	assert.Equal(t, []string{
		"📊 Status update: running",
		"📝 Update from Devin:\n\nhalfway",
		"📊 Status update: stopped",
		fmt.Sprintf(msgSessionCompleted, sessionURL),
		"📝 Update from Devin:\n\ndone",
	}, f.notifier.texts())
	f.remote.AssertNumberOfCalls(t, "GetSession", 3)
}

func TestPoller_StopsWhenOrphaned(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3})

	require.NoError(t, f.store.Set(context.Background(), "42", domain.UserSession{UserID: "42", RemoteSessionID: "devin-2"}))

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	f.waitIdle(t, "42")

	f.remote.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything)
	assert.Empty(t, f.notifier.texts())
}

func TestPoller_StopsWhenSessionRemoved(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3})

	_, err := f.store.Remove(context.Background(), "42")
	require.NoError(t, err)

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	f.waitIdle(t, "42")

	f.remote.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything)
}

func TestPoller_Supersede(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: time.Hour})

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	assert.False(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}), "same key is already polled")

	next := PollKey{UserID: "42", SessionID: "devin-2"}
	require.True(t, f.poller.Start(PollRequest{Key: next, ChatID: 42}))

	key, ok := f.poller.Active("42")
	require.True(t, ok)
	assert.Equal(t, next, key)

	other := PollKey{UserID: "7", SessionID: "devin-1"}
	require.True(t, f.poller.Start(PollRequest{Key: other, ChatID: 7}))
	key, ok = f.poller.Active("42")
	require.True(t, ok)
	assert.Equal(t, next, key)
}

func TestPoller_ResumedPrimesFirstObservation(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3})

	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("blocked", "old answer"), nil).Twice()
	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("running", "old answer"), nil).Once()
	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("blocked", "new answer"), nil)

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42, Resumed: true}))
	f.waitIdle(t, "42")

	assert.Equal(t, []string{
		"📊 Status update: running",
		"📊 Status update: blocked",
		fmt.Sprintf(msgSessionBlocked, sessionURL),
		"📝 Update from Devin:\n\nnew answer",
	}, f.notifier.texts())
}

func TestPoller_ResumedReportsQuickRoundTrip(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3})

	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("blocked", "new question?"), nil)

	require.True(t, f.poller.Start(PollRequest{
		Key:      pollKey,
		ChatID:   42,
		Resumed:  true,
		Baseline: snapshot("blocked", "old question?"),
	}))
	f.waitIdle(t, "42")

	assert.Equal(t, []string{
		"📊 Status update: blocked",
		fmt.Sprintf(msgSessionBlocked, sessionURL),
		"📝 Update from Devin:\n\nnew question?",
	}, f.notifier.texts())
	f.remote.AssertNumberOfCalls(t, "GetSession", 1)
}

func TestPoller_ResumedStopsWhenNeverPickedUp(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3, ResumeLimit: 4})

	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("stopped", "final report"), nil)

	require.True(t, f.poller.Start(PollRequest{
		Key:      pollKey,
		ChatID:   42,
		Resumed:  true,
		Baseline: snapshot("stopped", "final report"),
	}))
	f.waitIdle(t, "42")

	assert.Empty(t, f.notifier.texts())
	f.remote.AssertNumberOfCalls(t, "GetSession", 4)
}

func TestPoller_ResumedWithoutBaselineStops(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3, ResumeLimit: 3})

	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("blocked", "new question?"), nil)

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42, Resumed: true}))
	f.waitIdle(t, "42")

	assert.Empty(t, f.notifier.texts(), "the primed state was already current when the message was sent")
	f.remote.AssertNumberOfCalls(t, "GetSession", 3)
}

func TestPoller_GivesUpAfterConsecutiveFailures(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3})

	f.remote.On("GetSession", mock.Anything, "devin-1").
		Return(nil, &domain.RemoteAPIError{Op: "get session", StatusCode: 503})

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	f.waitIdle(t, "42")

	f.remote.AssertNumberOfCalls(t, "GetSession", 3)
	assert.Empty(t, f.notifier.texts())
}

func TestPoller_FailureCountResetsOnSuccess(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 2})

	failure := errors.New("connection reset")
	f.remote.On("GetSession", mock.Anything, "devin-1").Return(nil, failure).Once()
	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("running", nil), nil).Once()
	f.remote.On("GetSession", mock.Anything, "devin-1").Return(nil, failure).Once()
	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("stopped", nil), nil)

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	f.waitIdle(t, "42")

	assert.Equal(t, []string{
		"📊 Status update: running",
		"📊 Status update: stopped",
		fmt.Sprintf(msgSessionCompleted, sessionURL),
	}, f.notifier.texts())
}

func TestPoller_MaxDuration(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3, MaxDuration: 40 * time.Millisecond})

	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("running", nil), nil)

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	f.waitIdle(t, "42")

	assert.Equal(t, []string{"📊 Status update: running"}, f.notifier.texts())
}

func TestPoller_Shutdown(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: 5 * time.Millisecond, MaxFailures: 3})

	f.remote.On("GetSession", mock.Anything, "devin-1").Return(snapshot("running", nil), nil)

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	f.poller.Shutdown()

	_, ok := f.poller.Active("42")
	assert.False(t, ok)
	assert.False(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
}

func TestPoller_Cancel(t *testing.T) {
	f := newPollerFixture(t, PollerConfig{Interval: time.Hour})

	require.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
	f.poller.Cancel("42")
	f.poller.Cancel("42")

	_, ok := f.poller.Active("42")
	assert.False(t, ok)
	assert.True(t, f.poller.Start(PollRequest{Key: pollKey, ChatID: 42}))
}
