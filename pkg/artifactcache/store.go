package artifactcache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists cache entries. A single store instance typically backs
// all three artifact kinds; the manager scopes operations to its kind.
//
// InsertOrGet is the concurrency primitive of this layer: two callers
// racing to create the same key must both succeed, with exactly one row
// persisted. Implementations map their backend's duplicate-key
// condition to the "adopt the existing row" branch instead of
// returning an error.
type Store interface {
	// Get returns the entry for the key or ErrEntryNotFound.
	Get(ctx context.Context, key Key) (*Entry, error)

	// InsertOrGet atomically creates the entry if the key is free, or
	// returns the already-persisted entry. The bool reports whether the
	// given entry was stored.
	InsertOrGet(ctx context.Context, entry Entry) (*Entry, bool, error)

	// Replace unconditionally upserts the entry, superseding any
	// existing row for the key. Used for forced recomputation.
	Replace(ctx context.Context, entry Entry) error

	// DeleteByAccount bulk-deletes the account's entries, optionally
	// restricted to the given kinds, and returns the number deleted.
	DeleteByAccount(ctx context.Context, accountID uuid.UUID, kinds ...Kind) (int64, error)

	// DeleteExpired removes entries whose horizon passed before now and
	// returns the number deleted. Backends with native expiry may
	// return 0.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
