package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rrens/devin-relay/internal/config"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Client wraps the Redis client. The connection is dialed on first use and
// kept for the life of the process; a failed dial is retried on the next call.
// Concurrent callers share one dial attempt.
type Client struct {
	opts *redis.Options
	dial singleflight.Group

	mu  sync.Mutex
	rdb *redis.Client
}

// NewClient creates a new Redis client without connecting
func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		opts: &redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		},
	}
}

// conn returns the shared connection, dialing and verifying it if needed
func (c *Client) conn(ctx context.Context) (*redis.Client, error) {
	if rdb := c.current(); rdb != nil {
		return rdb, nil
	}

	v, err, _ := c.dial.Do("dial", func() (any, error) {
		if rdb := c.current(); rdb != nil {
			return rdb, nil
		}

		// Other callers wait on this dial, so it must outlive this caller
		rdb := redis.NewClient(c.opts)
		if err := rdb.Ping(context.WithoutCancel(ctx)).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", c.opts.Addr, err)
		}

		c.mu.Lock()
		c.rdb = rdb
		c.mu.Unlock()
		return rdb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*redis.Client), nil
}

func (c *Client) current() *redis.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rdb
}

// Ping verifies connectivity, dialing if necessary
func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.conn(ctx)
	if err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}

// Close closes the Redis connection if one was opened
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb == nil {
		return nil
	}
	err := c.rdb.Close()
	c.rdb = nil
	return err
}
