package redis

import (
	"context"
	"fmt"
	"time"
)

const updatePrefix = "devin-telegram:update:"

// UpdateDeduper marks webhook updates as handled using expiring Redis keys
type UpdateDeduper struct {
	client *Client
	window time.Duration
}

// NewUpdateDeduper creates a deduper that remembers an update for window
func NewUpdateDeduper(client *Client, window time.Duration) *UpdateDeduper {
	return &UpdateDeduper{client: client, window: window}
}

// FirstSeen sets the update key only if it is absent
func (d *UpdateDeduper) FirstSeen(ctx context.Context, updateID int64) (bool, error) {
	rdb, err := d.client.conn(ctx)
	if err != nil {
		return false, unavailable("dedupe", err)
	}

	key := fmt.Sprintf("%s%d", updatePrefix, updateID)
	created, err := rdb.SetNX(ctx, key, 1, d.window).Result()
	if err != nil {
		return false, unavailable("dedupe", err)
	}
	return created, nil
}
