package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const keyPrefix = "session:"

// SessionStore implements domain.SessionStore on a SQLite key/value table.
// The database is opened on first use.
type SessionStore struct {
	path     string
	pageSize int

	mu sync.Mutex
	db *sql.DB
}

// NewSessionStore creates a store backed by the database file at path
func NewSessionStore(path string, pageSize int) *SessionStore {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SessionStore{path: path, pageSize: pageSize}
}

func unavailable(op string, err error) error {
	return &domain.StoreUnavailableError{Op: op, Err: err}
}

func (s *SessionStore) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	schema := `
	PRAGMA journal_mode = WAL;
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s.db = db
	return db, nil
}

// Get retrieves the session for a user, or nil if there is none
func (s *SessionStore) Get(ctx context.Context, userID string) (*domain.UserSession, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, unavailable("get", err)
	}

	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, keyPrefix+userID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return decodeSession(userID, value), nil
}

// Set stores the session for a user, replacing any existing one
func (s *SessionStore) Set(ctx context.Context, userID string, session domain.UserSession) error {
	db, err := s.conn(ctx)
	if err != nil {
		return unavailable("set", err)
	}

	session.UserID = userID
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, keyPrefix+userID, string(data))
	if err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Exists checks whether a user has a stored session
func (s *SessionStore) Exists(ctx context.Context, userID string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, unavailable("exists", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv WHERE key = ?`, keyPrefix+userID).Scan(&n); err != nil {
		return false, unavailable("exists", err)
	}
	return n == 1, nil
}

// Remove deletes the session for a user
func (s *SessionStore) Remove(ctx context.Context, userID string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, unavailable("remove", err)
	}

	res, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, keyPrefix+userID)
	if err != nil {
		return false, unavailable("remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("remove", err)
	}
	return n == 1, nil
}

// ListAll returns every stored session, reading the table in key order one
// page at a time.
func (s *SessionStore) ListAll(ctx context.Context) ([]domain.UserSession, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, unavailable("list", err)
	}

	var sessions []domain.UserSession
	after := keyPrefix

	for {
		page, last, err := s.listPage(ctx, db, after)
		if err != nil {
			return nil, unavailable("list", err)
		}
		sessions = append(sessions, page...)
		if last == "" {
			break
		}
		after = last
	}

	return sessions, nil
}

// listPage returns the sessions after the given key and the last key read,
// or an empty key when the table is exhausted.
func (s *SessionStore) listPage(ctx context.Context, db *sql.DB, after string) ([]domain.UserSession, string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key, value FROM kv
		WHERE key > ? AND substr(key, 1, ?) = ?
		ORDER BY key
		LIMIT ?
	`, after, len(keyPrefix), keyPrefix, s.pageSize)
	if err != nil {
		return nil, "", fmt.Errorf("failed to scan keys: %w", err)
	}
	defer rows.Close()

	var sessions []domain.UserSession
	var last string
	count := 0
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, "", fmt.Errorf("failed to read row: %w", err)
		}
		count++
		last = key
		if session := decodeSession(strings.TrimPrefix(key, keyPrefix), value); session != nil {
			sessions = append(sessions, *session)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	if count < s.pageSize {
		last = ""
	}
	return sessions, last, nil
}

// Ping verifies the database is reachable
func (s *SessionStore) Ping(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return unavailable("ping", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the database if it was opened
func (s *SessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func decodeSession(userID, value string) *domain.UserSession {
	var session domain.UserSession
	if err := json.Unmarshal([]byte(value), &session); err != nil {
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
