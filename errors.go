package sessionkit

import "errors"

var (
	// ErrNotFound indicates no session exists for the given ID. The Manager
	// recovers from it by creating a fresh anonymous session; it is exported
	// so custom Store implementations can return it.
	ErrNotFound = errors.New("session.not_found")

	// ErrVersionConflict indicates a save raced with another writer: the
	// expected version no longer matches the stored one.
	ErrVersionConflict = errors.New("session.version_conflict")

	// ErrTimeout indicates a backend call exceeded its deadline.
	ErrTimeout = errors.New("session.backend_timeout")

	// ErrBackendUnavailable indicates the backend could not be reached
	// (connection refused, protocol failure).
	ErrBackendUnavailable = errors.New("session.backend_unavailable")

	// ErrResourceExhausted indicates the backend connection pool is exhausted.
	ErrResourceExhausted = errors.New("session.pool_exhausted")

	// ErrCorrupted indicates a stored payload could not be deserialized.
	ErrCorrupted = errors.New("session.corrupted_payload")

	// ErrInvalidated indicates the session was discarded after a strict
	// fingerprint mismatch. The Manager recovers by issuing a fresh session
	// and carries this sentinel in the security log; it is exported so custom
	// transports can surface the invalidation to clients.
	ErrInvalidated = errors.New("session.invalidated")

	// ErrTokenGeneration indicates session ID generation failed.
	ErrTokenGeneration = errors.New("session.token_generation_failed")
)
