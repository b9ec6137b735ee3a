package status

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no cached status row exists for an account.
var ErrNotFound = errors.New("status not found")

// CachedStatus is the local read-optimized projection of an account's
// authoritative status record. It may transiently lag the repository; the
// firehose consumer re-derives it from repository change events.
type CachedStatus struct {
	DID       string
	Status    string
	UpdatedAt time.Time
	IndexedAt time.Time
}

// Repository provides access to the cached status rows.
type Repository interface {
	// Upsert overwrites the row for a DID, or inserts it if absent.
	Upsert(ctx context.Context, row *CachedStatus) error
	// GetByDID returns ErrNotFound when the account has never been indexed.
	GetByDID(ctx context.Context, did string) (*CachedStatus, error)
	// ListRecent returns up to limit rows, newest first by indexing time,
	// ties broken by DID for deterministic ordering.
	ListRecent(ctx context.Context, limit int) ([]CachedStatus, error)
}
