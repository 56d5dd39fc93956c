package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sessionListKey = "devin-telegram:remote-sessions"

// SessionListCache caches the remote session listing in Redis
type SessionListCache struct {
	client *Client
	ttl    time.Duration
}

// NewSessionListCache creates a new session list cache
func NewSessionListCache(client *Client, ttl time.Duration) *SessionListCache {
	return &SessionListCache{client: client, ttl: ttl}
}

// Get retrieves the cached listing
func (c *SessionListCache) Get(ctx context.Context) ([]domain.RemoteSessionSnapshot, bool, error) {
	rdb, err := c.client.conn(ctx)
	if err != nil {
		return nil, false, unavailable("cache get", err)
	}

	data, err := rdb.Get(ctx, sessionListKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("cache get", err)
	}

	var snapshots []domain.RemoteSessionSnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		log.Warn().Err(err).Msg("Discarding corrupt session list cache")
		return nil, false, nil
	}
	return snapshots, true, nil
}

// Set caches the listing for the configured TTL
func (c *SessionListCache) Set(ctx context.Context, snapshots []domain.RemoteSessionSnapshot) error {
	rdb, err := c.client.conn(ctx)
	if err != nil {
		return unavailable("cache set", err)
	}

	data, err := json.Marshal(snapshots)
	if err != nil {
		return fmt.Errorf("failed to marshal session list: %w", err)
	}
	if err := rdb.Set(ctx, sessionListKey, data, c.ttl).Err(); err != nil {
		return unavailable("cache set", err)
	}
	return nil
}
