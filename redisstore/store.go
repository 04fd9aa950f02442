package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionkit"
)

// Store is the Redis-backed session store. Each session lives in one hash
// with two fields: the serialized payload and its version. Keeping the
// version as a separate hash field lets the save script compare it without
// deserializing the payload, and lets PEXPIRE refresh the TTL without
// touching either.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ sessionkit.Store = (*Store)(nil)

const (
	fieldPayload = "payload"
	fieldVersion = "version"
)

// saveScript atomically compares the stored version with the expected one
// and, on match, writes payload and incremented version and resets the TTL.
// A missing key counts as version 0. Returns the new version, or -1 on
// conflict.
var saveScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then
	current = '0'
end
if current ~= ARGV[1] then
	return -1
end
local next = tonumber(current) + 1
redis.call('HSET', KEYS[1], 'payload', ARGV[2], 'version', next)
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return next
`)

// New creates a Redis session store. keyPrefix namespaces all keys; pass the
// empty string to store sessions unprefixed.
func New(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{
		client: client,
		prefix: keyPrefix,
	}
}

// KeyPrefix returns the configured key prefix.
func (s *Store) KeyPrefix() string { return s.prefix }

func (s *Store) key(id string) string { return s.prefix + id }

// Load fetches the record and its remaining TTL in a single pipeline round
// trip. It is a pure read: the TTL is observed, never extended.
func (s *Store) Load(ctx context.Context, id string) (*sessionkit.Record, time.Duration, error) {
	var (
		fields *redis.SliceCmd
		pttl   *redis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HMGet(ctx, s.key(id), fieldPayload, fieldVersion)
		pttl = pipe.PTTL(ctx, s.key(id))
		return nil
	})
	if err != nil {
		return nil, 0, mapErr(err)
	}

	vals := fields.Val()
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, 0, sessionkit.ErrNotFound
	}

	payload, ok := vals[0].(string)
	if !ok {
		return nil, 0, sessionkit.ErrCorrupted
	}
	versionStr, ok := vals[1].(string)
	if !ok {
		return nil, 0, sessionkit.ErrCorrupted
	}
	version, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil {
		return nil, 0, errors.Join(sessionkit.ErrCorrupted, err)
	}

	rec, err := sessionkit.DecodeRecord(id, []byte(payload), version)
	if err != nil {
		return nil, 0, err
	}

	ttl := pttl.Val()
	if ttl < 0 {
		ttl = 0
	}
	return rec, ttl, nil
}

// Save runs the compare-and-set script: the full record is written and the
// version incremented only if the stored version equals expectedVersion.
func (s *Store) Save(ctx context.Context, rec *sessionkit.Record, ttl time.Duration, expectedVersion int64) (int64, error) {
	payload, err := sessionkit.EncodeRecord(rec)
	if err != nil {
		return 0, err
	}

	newVersion, err := saveScript.Run(ctx, s.client,
		[]string{s.key(rec.ID())},
		strconv.FormatInt(expectedVersion, 10),
		payload,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, mapErr(err)
	}
	if newVersion == -1 {
		return 0, sessionkit.ErrVersionConflict
	}
	return newVersion, nil
}

// RefreshTTL extends the key's expiry without rewriting payload or version.
// Returns false when the key already expired.
func (s *Store) RefreshTTL(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.client.PExpire(ctx, s.key(id), ttl).Result()
	if err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

// Delete removes the session key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return mapErr(err)
	}
	return nil
}

// ScanCount counts keys under keyPrefix with cursor-driven SCAN batches so
// no single round trip pins a connection for the whole keyspace. SCAN is
// approximate by design: keys created or expired mid-scan may be missed or
// double-counted.
func (s *Store) ScanCount(ctx context.Context, keyPrefix string, batchSize int) (int64, error) {
	prefix := keyPrefix
	if prefix == "" {
		prefix = s.prefix
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	var (
		count  int64
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", int64(batchSize)).Result()
		if err != nil {
			return 0, mapErr(err)
		}
		count += int64(len(keys))
		if next == 0 {
			return count, nil
		}
		cursor = next

		// Yield between batches; the next SCAN acquires its own connection.
		select {
		case <-ctx.Done():
			return 0, mapErr(ctx.Err())
		default:
		}
	}
}

// mapErr translates go-redis failures into the sessionkit taxonomy so
// callers can branch with errors.Is regardless of backend.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return sessionkit.ErrNotFound
	case errors.Is(err, redis.ErrPoolTimeout):
		return errors.Join(sessionkit.ErrResourceExhausted, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(sessionkit.ErrTimeout, err)
	default:
		return errors.Join(sessionkit.ErrBackendUnavailable, err)
	}
}
