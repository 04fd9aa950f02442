package sessionkit

import (
	"context"
	"time"
)

// Store is the pluggable persistence backend. Implementations must honor
// context deadlines on every call and map their failures onto the package
// sentinel errors (ErrNotFound, ErrVersionConflict, ErrTimeout,
// ErrBackendUnavailable, ErrResourceExhausted, ErrCorrupted) via errors.Join
// so callers can match with errors.Is.
type Store interface {
	// Load returns the record and its remaining TTL. It is a pure read: it
	// must not extend the TTL or otherwise mutate stored state.
	Load(ctx context.Context, id string) (*Record, time.Duration, error)

	// Save atomically writes the full record and advances its version, but
	// only if the stored version equals expectedVersion (0 means "did not
	// exist"). A mismatch returns ErrVersionConflict, never a silent
	// overwrite. Returns the new version.
	Save(ctx context.Context, rec *Record, ttl time.Duration, expectedVersion int64) (int64, error)

	// RefreshTTL extends the expiry without touching payload bytes or the
	// version. Returns false when the key no longer exists — the caller
	// must treat that as session loss, not as an error.
	RefreshTTL(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// ScanCount approximately counts live sessions under keyPrefix using
	// cursor-driven batches of batchSize, yielding between batches so it
	// never monopolizes a connection. An empty keyPrefix means the store's
	// own configured prefix. The result is eventually consistent.
	ScanCount(ctx context.Context, keyPrefix string, batchSize int) (int64, error)
}

// KeyPrefixer is an optional interface for stores that namespace their keys,
// letting stats report the effective prefix without extra configuration.
type KeyPrefixer interface {
	KeyPrefix() string
}
