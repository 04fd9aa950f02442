package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sessionkit"
)

// Store is the PostgreSQL-backed session store. Optimistic concurrency rides
// on a version column: saves are version-checked single-statement writes, so
// the database's row-level atomicity does the compare-and-set. TTL is
// emulated with an expires_at column; expired rows are invisible to every
// query and physically removed by CleanupExpired.
type Store struct {
	pool   *pgxpool.Pool
	prefix string
}

var _ sessionkit.Store = (*Store)(nil)

// New creates a PostgreSQL session store. keyPrefix namespaces row IDs so
// several applications can share one sessions table.
func New(pool *pgxpool.Pool, keyPrefix string) *Store {
	return &Store{
		pool:   pool,
		prefix: keyPrefix,
	}
}

// KeyPrefix returns the configured key prefix.
func (s *Store) KeyPrefix() string { return s.prefix }

func (s *Store) key(id string) string { return s.prefix + id }

// Load fetches a live row and derives the remaining TTL from expires_at.
// Pure read: the expiry is never extended here.
func (s *Store) Load(ctx context.Context, id string) (*sessionkit.Record, time.Duration, error) {
	var (
		payload   []byte
		version   int64
		expiresAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT payload, version, expires_at FROM sessions WHERE id = $1 AND expires_at > now()`,
		s.key(id),
	).Scan(&payload, &version, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, sessionkit.ErrNotFound
		}
		return nil, 0, mapErr(err)
	}

	rec, err := sessionkit.DecodeRecord(id, payload, version)
	if err != nil {
		return nil, 0, err
	}

	ttl := time.Until(expiresAt)
	if ttl < 0 {
		ttl = 0
	}
	return rec, ttl, nil
}

// Save writes the full record if the stored version matches expectedVersion.
// Expected version 0 means "did not exist": an insert that may also take
// over an expired row, whose logical version is 0.
func (s *Store) Save(ctx context.Context, rec *sessionkit.Record, ttl time.Duration, expectedVersion int64) (int64, error) {
	payload, err := sessionkit.EncodeRecord(rec)
	if err != nil {
		return 0, err
	}
	expiresAt := time.Now().Add(ttl)

	var newVersion int64
	if expectedVersion == 0 {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO sessions (id, payload, version, expires_at)
			 VALUES ($1, $2, 1, $3)
			 ON CONFLICT (id) DO UPDATE
			 SET payload = EXCLUDED.payload, version = 1, expires_at = EXCLUDED.expires_at
			 WHERE sessions.expires_at <= now()
			 RETURNING version`,
			s.key(rec.ID()), payload, expiresAt,
		).Scan(&newVersion)
	} else {
		err = s.pool.QueryRow(ctx,
			`UPDATE sessions
			 SET payload = $2, version = version + 1, expires_at = $3
			 WHERE id = $1 AND version = $4 AND expires_at > now()
			 RETURNING version`,
			s.key(rec.ID()), payload, expiresAt, expectedVersion,
		).Scan(&newVersion)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, sessionkit.ErrVersionConflict
		}
		return 0, mapErr(err)
	}

	return newVersion, nil
}

// RefreshTTL pushes expires_at forward without touching payload or version.
// Returns false when the row is gone or already expired.
func (s *Store) RefreshTTL(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET expires_at = $2 WHERE id = $1 AND expires_at > now()`,
		s.key(id), time.Now().Add(ttl),
	)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes the row. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, s.key(id)); err != nil {
		return mapErr(err)
	}
	return nil
}

// ScanCount counts live rows under keyPrefix with keyset pagination, one
// bounded batch per round trip so the scan never holds a connection across
// the whole table.
func (s *Store) ScanCount(ctx context.Context, keyPrefix string, batchSize int) (int64, error) {
	prefix := keyPrefix
	if prefix == "" {
		prefix = s.prefix
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	pattern := escapeLike(prefix) + "%"

	var (
		count  int64
		cursor string
	)
	for {
		var (
			n    int64
			last *string
		)
		err := s.pool.QueryRow(ctx,
			`SELECT count(*), max(id) FROM (
				SELECT id FROM sessions
				WHERE id > $1 AND id LIKE $2 AND expires_at > now()
				ORDER BY id LIMIT $3
			) batch`,
			cursor, pattern, batchSize,
		).Scan(&n, &last)
		if err != nil {
			return 0, mapErr(err)
		}

		count += n
		if last == nil || n < int64(batchSize) {
			return count, nil
		}
		cursor = *last

		select {
		case <-ctx.Done():
			return 0, mapErr(ctx.Err())
		default:
		}
	}
}

// CleanupExpired physically removes expired rows. Expired rows are already
// invisible to reads; this reclaims space and should run periodically.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

// escapeLike neutralizes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// mapErr translates pgx failures into the sessionkit taxonomy. Pool
// exhaustion manifests as an acquisition deadline, so it maps to ErrTimeout
// together with command timeouts.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(sessionkit.ErrTimeout, err)
	default:
		return errors.Join(sessionkit.ErrBackendUnavailable, err)
	}
}
