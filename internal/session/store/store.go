// Package store publishes read-only certainty snapshots for the certificate
// service. Entries expire; the session owns the live registry.
package store

import (
	"context"
	"time"

	"certproof/internal/proof/registry"
)

// Published is a snapshot as handed out to readers.
type Published struct {
	SessionID   string            `json:"session_id"`
	Snapshot    registry.Snapshot `json:"snapshot"`
	PublishedAt time.Time         `json:"published_at"`
}

// SnapshotStore holds the latest snapshot per session. Get returns
// sentinel.ErrNotFound for missing or expired entries.
type SnapshotStore interface {
	Put(ctx context.Context, p Published, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (Published, error)
	Delete(ctx context.Context, sessionID string) error
}
