package repository

import (
	"fmt"

	"github.com/Rrens/devin-relay/internal/config"
	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/Rrens/devin-relay/internal/repository/memory"
	"github.com/Rrens/devin-relay/internal/repository/redis"
	"github.com/Rrens/devin-relay/internal/repository/sqlite"
)

// Backend groups the storage components of one deployment. With the redis
// driver they share a single connection.
type Backend struct {
	Sessions domain.SessionStore
	// Updates is nil when deduplication is disabled
	Updates domain.UpdateDeduper
	// ListCache is nil when list caching is disabled
	ListCache domain.SnapshotCache
}

// Close releases the shared connection
func (b *Backend) Close() error {
	return b.Sessions.Close()
}

// Open builds the backend selected by cfg.Store.Driver. Components that
// have no durable form for a driver fall back to process memory.
func Open(cfg *config.Config) (*Backend, error) {
	dedupeOn := cfg.Telegram.DedupeWindow > 0
	cacheOn := cfg.Polling.ListCacheTTL > 0

	switch cfg.Store.Driver {
	case "", "redis":
		client := redis.NewClient(cfg.Redis)
		b := &Backend{Sessions: redis.NewSessionStore(client, cfg.Redis.KeyPrefix, cfg.Redis.ScanCount)}
		if dedupeOn {
			b.Updates = redis.NewUpdateDeduper(client, cfg.Telegram.DedupeWindow)
		}
		if cacheOn {
			b.ListCache = redis.NewSessionListCache(client, cfg.Polling.ListCacheTTL)
		}
		return b, nil
	case "sqlite", "memory":
		sessions, err := OpenSessionStore(cfg)
		if err != nil {
			return nil, err
		}
		b := &Backend{Sessions: sessions}
		if dedupeOn {
			b.Updates = memory.NewUpdateDeduper(cfg.Telegram.DedupeWindow)
		}
		if cacheOn {
			b.ListCache = memory.NewSessionListCache(cfg.Polling.ListCacheTTL)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// OpenSessionStore builds the session store selected by cfg.Store.Driver.
// No connection is made until the store is first used.
func OpenSessionStore(cfg *config.Config) (domain.SessionStore, error) {
	switch cfg.Store.Driver {
	case "", "redis":
		client := redis.NewClient(cfg.Redis)
		return redis.NewSessionStore(client, cfg.Redis.KeyPrefix, cfg.Redis.ScanCount), nil
	case "sqlite":
		return sqlite.NewSessionStore(cfg.SQLite.Path, cfg.SQLite.PageSize), nil
	case "memory":
		return memory.NewSessionStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}
