package service

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notifier delivers text to a chat
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// PollKey identifies one background poll
type PollKey struct {
	UserID    string
	SessionID string
}

// PollerConfig controls the background polling cadence and limits
type PollerConfig struct {
	Interval    time.Duration
	MaxFailures int

	// MaxDuration caps how long a single poll may run. Zero means no cap.
	MaxDuration time.Duration

	// ResumeLimit ends a resumed poll after this many ticks without a
	// notice while the session has not been seen running.
	ResumeLimit int
}

// PollRequest describes a poll to start
type PollRequest struct {
	Key    PollKey
	ChatID int64

	// Resumed polls follow a message sent to an existing session. A blocked
	// or stopped session does not end the poll until it has been seen
	// running or has produced new output.
	Resumed bool

	// Baseline is the remote state fetched before the message was sent.
	// Without one, a resumed poll primes on its first tick.
	Baseline *domain.RemoteSessionSnapshot
}

type pollTask struct {
	id     string
	req    PollRequest
	cancel context.CancelFunc
}

// Poller owns one cancellable polling goroutine per user. Starting a poll
// for a different session of the same user cancels the previous one.
type Poller struct {
	store      domain.SessionStore
	remote     domain.RemoteSessionClient
	reconciler *Reconciler
	notifier   Notifier
	cfg        PollerConfig

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	tasks  map[string]*pollTask
	closed bool
}

// NewPoller creates an idle poller registry
func NewPoller(store domain.SessionStore, remote domain.RemoteSessionClient, reconciler *Reconciler, notifier Notifier, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResumeLimit <= 0 {
		cfg.ResumeLimit = 6
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Poller{
		store:      store,
		remote:     remote,
		reconciler: reconciler,
		notifier:   notifier,
		cfg:        cfg,
		ctx:        ctx,
		stop:       stop,
		tasks:      make(map[string]*pollTask),
	}
}

// Start begins polling req.Key. It returns false when that exact key is
// already being polled or the poller has shut down.
func (p *Poller) Start(req PollRequest) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	if existing, ok := p.tasks[req.Key.UserID]; ok {
		if existing.req.Key == req.Key {
			return false
		}
		log.Debug().
			Str("poll_id", existing.id).
			Str("user_id", req.Key.UserID).
			Str("session_id", existing.req.Key.SessionID).
			Msg("Superseding session poll")
		existing.cancel()
		delete(p.tasks, req.Key.UserID)
	}

	ctx, cancel := context.WithCancel(p.ctx)
	task := &pollTask{
		id:     uuid.New().String(),
		req:    req,
		cancel: cancel,
	}
	p.tasks[req.Key.UserID] = task

	p.wg.Add(1)
	go p.run(ctx, task)
	return true
}

// Cancel stops the poll for a user, if any
func (p *Poller) Cancel(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if task, ok := p.tasks[userID]; ok {
		task.cancel()
		delete(p.tasks, userID)
	}
}

// Active returns the key currently polled for a user
func (p *Poller) Active(userID string) (PollKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[userID]
	if !ok {
		return PollKey{}, false
	}
	return task.req.Key, true
}

// Shutdown cancels every poll and waits for the goroutines to exit
func (p *Poller) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.stop()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, task *pollTask) {
	defer p.wg.Done()
	defer p.release(task)

	logger := log.With().
		Str("poll_id", task.id).
		Str("user_id", task.req.Key.UserID).
		Str("session_id", task.req.Key.SessionID).
		Logger()
	logger.Debug().Dur("interval", p.cfg.Interval).Msg("Session poll started")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if p.cfg.MaxDuration > 0 {
		timer := time.NewTimer(p.cfg.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	obs := &Observation{awaitRunning: task.req.Resumed}
	prime := task.req.Resumed
	if task.req.Baseline != nil {
		p.reconciler.Prime(obs, task.req.Baseline)
		prime = false
	}
	failures := 0
	quiet := 0

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Session poll cancelled")
			return
		case <-deadline:
			logger.Info().Dur("max_duration", p.cfg.MaxDuration).Msg("Session poll reached its time limit")
			return
		case <-ticker.C:
		}

		notified, done, err := p.tick(ctx, task, obs, prime)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			logger.Warn().Err(err).Int("failures", failures).Msg("Session poll failed")
			if failures >= p.cfg.MaxFailures {
				logger.Error().Err(err).Msg("Giving up on session poll")
				return
			}
			continue
		}

		failures = 0
		prime = false
		if done {
			logger.Debug().Str("status", string(obs.Category())).Msg("Session poll finished")
			return
		}

		if !task.req.Resumed || obs.sawRunning || notified {
			quiet = 0
			continue
		}
		quiet++
		if quiet >= p.cfg.ResumeLimit {
			logger.Debug().Str("status", string(obs.Category())).Int("ticks", quiet).Msg("Resumed session never picked up, stopping poll")
			return
		}
	}
}

// tick runs one reconciliation cycle. It reports whether any notice was
// produced and whether polling is over.
func (p *Poller) tick(ctx context.Context, task *pollTask, obs *Observation, prime bool) (bool, bool, error) {
	key := task.req.Key

	session, err := p.store.Get(ctx, key.UserID)
	if err != nil {
		return false, false, err
	}
	if session == nil || session.RemoteSessionID != key.SessionID {
		log.Debug().Str("user_id", key.UserID).Str("session_id", key.SessionID).Msg("Session replaced, stopping poll")
		return false, true, nil
	}

	snap, err := p.remote.GetSession(ctx, key.SessionID)
	if err != nil {
		return false, false, err
	}

	if prime {
		p.reconciler.Prime(obs, snap)
		return false, false, nil
	}

	notices := p.reconciler.Reconcile(ctx, obs, snap, session.RemoteSessionURL)
	for _, n := range notices {
		if err := p.notifier.SendMessage(ctx, task.req.ChatID, n.Text); err != nil {
			log.Error().Err(err).Str("user_id", key.UserID).Msg("Failed to deliver session update")
		}
	}
	return len(notices) > 0, obs.Finished(), nil
}

// release drops the task from the registry unless it was already replaced
func (p *Poller) release(task *pollTask) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.tasks[task.req.Key.UserID]; ok && current == task {
		delete(p.tasks, task.req.Key.UserID)
	}
	task.cancel()
}
