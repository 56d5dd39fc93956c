package domain

import "context"

// UpdateDeduper remembers recently handled webhook updates
type UpdateDeduper interface {
	// FirstSeen records updateID and reports whether it was new
	FirstSeen(ctx context.Context, updateID int64) (bool, error)
}

// SnapshotCache holds a recent remote session listing
type SnapshotCache interface {
	// Get reports false on a miss
	Get(ctx context.Context) ([]RemoteSessionSnapshot, bool, error)
	Set(ctx context.Context, snapshots []RemoteSessionSnapshot) error
}
