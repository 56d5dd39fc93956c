package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionStore implements domain.SessionStore on Redis string keys
type SessionStore struct {
	client    *Client
	keyPrefix string
	scanCount int64
}

// NewSessionStore creates a new Redis-backed session store
func NewSessionStore(client *Client, keyPrefix string, scanCount int64) *SessionStore {
	if scanCount <= 0 {
		scanCount = 100
	}
	return &SessionStore{
		client:    client,
		keyPrefix: keyPrefix,
		scanCount: scanCount,
	}
}

func (s *SessionStore) key(userID string) string {
	return s.keyPrefix + userID
}

func unavailable(op string, err error) error {
	return &domain.StoreUnavailableError{Op: op, Err: err}
}

// Get retrieves the session for a user, or nil if there is none
func (s *SessionStore) Get(ctx context.Context, userID string) (*domain.UserSession, error) {
	rdb, err := s.client.conn(ctx)
	if err != nil {
		return nil, unavailable("get", err)
	}

	data, err := rdb.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}

	return decodeSession(userID, data), nil
}

// Set stores the session for a user, replacing any existing one
func (s *SessionStore) Set(ctx context.Context, userID string, session domain.UserSession) error {
	rdb, err := s.client.conn(ctx)
	if err != nil {
		return unavailable("set", err)
	}

	session.UserID = userID
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := rdb.Set(ctx, s.key(userID), data, 0).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Exists checks whether a user has a stored session
func (s *SessionStore) Exists(ctx context.Context, userID string) (bool, error) {
	rdb, err := s.client.conn(ctx)
	if err != nil {
		return false, unavailable("exists", err)
	}

	n, err := rdb.Exists(ctx, s.key(userID)).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n == 1, nil
}

// Remove deletes the session for a user
func (s *SessionStore) Remove(ctx context.Context, userID string) (bool, error) {
	rdb, err := s.client.conn(ctx)
	if err != nil {
		return false, unavailable("remove", err)
	}

	n, err := rdb.Del(ctx, s.key(userID)).Result()
	if err != nil {
		return false, unavailable("remove", err)
	}
	return n == 1, nil
}

// ListAll returns every stored session. Keys are walked with SCAN so the
// keyspace is never loaded in one round trip.
func (s *SessionStore) ListAll(ctx context.Context) ([]domain.UserSession, error) {
	rdb, err := s.client.conn(ctx)
	if err != nil {
		return nil, unavailable("list", err)
	}

	pattern := s.keyPrefix + "*"
	seen := make(map[string]struct{})
	var sessions []domain.UserSession
	var cursor uint64

	for {
		keys, nextCursor, err := rdb.Scan(ctx, cursor, pattern, s.scanCount).Result()
		if err != nil {
			return nil, unavailable("list", fmt.Errorf("failed to scan keys: %w", err))
		}

		// SCAN may return a key more than once
		fresh := keys[:0]
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			fresh = append(fresh, k)
		}

		if len(fresh) > 0 {
			values, err := rdb.MGet(ctx, fresh...).Result()
			if err != nil {
				return nil, unavailable("list", fmt.Errorf("failed to load sessions: %w", err))
			}
			for i, v := range values {
				raw, ok := v.(string)
				if !ok {
					// removed between SCAN and MGET
					continue
				}
				userID := strings.TrimPrefix(fresh[i], s.keyPrefix)
				if session := decodeSession(userID, []byte(raw)); session != nil {
					sessions = append(sessions, *session)
				}
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}

// Ping verifies the store is reachable
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close releases the underlying connection
func (s *SessionStore) Close() error {
	return s.client.Close()
}

// decodeSession parses a stored record. Corrupt records are treated as absent.
func decodeSession(userID string, data []byte) *domain.UserSession {
	var session domain.UserSession
	if err := json.Unmarshal(data, &session); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Discarding unreadable session record")
		return nil
	}
	if session.RemoteSessionID == "" {
		log.Warn().Str("user_id", userID).Msg("Discarding session record without a session id")
		return nil
	}
	session.UserID = userID
	return &session
}
