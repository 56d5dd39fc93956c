package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/devin-relay/internal/domain"
)

// UpdateDeduper remembers handled update ids in process memory
type UpdateDeduper struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[int64]time.Time
	now    func() time.Time
}

// NewUpdateDeduper creates a deduper that remembers an update for window
func NewUpdateDeduper(window time.Duration) *UpdateDeduper {
	return &UpdateDeduper{
		window: window,
		seen:   make(map[int64]time.Time),
		now:    time.Now,
	}
}

func (d *UpdateDeduper) FirstSeen(_ context.Context, updateID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, expires := range d.seen {
		if !now.Before(expires) {
			delete(d.seen, id)
		}
	}

	if _, ok := d.seen[updateID]; ok {
		return false, nil
	}
	d.seen[updateID] = now.Add(d.window)
	return true, nil
}

// SessionListCache keeps the remote session listing for a fixed TTL
type SessionListCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	snapshots []domain.RemoteSessionSnapshot
	expires   time.Time
	now       func() time.Time
}

// NewSessionListCache creates an empty cache
func NewSessionListCache(ttl time.Duration) *SessionListCache {
	return &SessionListCache{ttl: ttl, now: time.Now}
}

func (c *SessionListCache) Get(context.Context) ([]domain.RemoteSessionSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshots == nil || !c.now().Before(c.expires) {
		return nil, false, nil
	}
	out := make([]domain.RemoteSessionSnapshot, len(c.snapshots))
	copy(out, c.snapshots)
	return out, true, nil
}

func (c *SessionListCache) Set(_ context.Context, snapshots []domain.RemoteSessionSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots = make([]domain.RemoteSessionSnapshot, len(snapshots))
	copy(c.snapshots, snapshots)
	c.expires = c.now().Add(c.ttl)
	return nil
}
