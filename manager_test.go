package sessionkit_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionkit"
	"github.com/dmitrymomot/sessionkit/fingerprint"
)

// spyStore counts backend calls and captures save arguments so tests can
// assert exactly how many round trips a request costs.
type spyStore struct {
	sessionkit.Store

	loads        int
	saves        int
	refreshes    int
	deletes      int
	lastExpected int64
}

func newSpyStore(t *testing.T) *spyStore {
	t.Helper()
	mem := sessionkit.NewMemoryStore(0)
	t.Cleanup(func() { _ = mem.Close() })
	return &spyStore{Store: mem}
}

func (s *spyStore) Load(ctx context.Context, id string) (*sessionkit.Record, time.Duration, error) {
	s.loads++
	return s.Store.Load(ctx, id)
}

func (s *spyStore) Save(ctx context.Context, rec *sessionkit.Record, ttl time.Duration, expectedVersion int64) (int64, error) {
	s.saves++
	s.lastExpected = expectedVersion
	return s.Store.Save(ctx, rec, ttl, expectedVersion)
}

func (s *spyStore) RefreshTTL(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	s.refreshes++
	return s.Store.RefreshTTL(ctx, id, ttl)
}

func (s *spyStore) Delete(ctx context.Context, id string) error {
	s.deletes++
	return s.Store.Delete(ctx, id)
}

// failStore fails every operation with a fixed error.
type failStore struct{ err error }

func (s *failStore) Load(context.Context, string) (*sessionkit.Record, time.Duration, error) {
	return nil, 0, s.err
}

func (s *failStore) Save(context.Context, *sessionkit.Record, time.Duration, int64) (int64, error) {
	return 0, s.err
}

func (s *failStore) RefreshTTL(context.Context, string, time.Duration) (bool, error) {
	return false, s.err
}

func (s *failStore) Delete(context.Context, string) error { return s.err }

func (s *failStore) ScanCount(context.Context, string, int) (int64, error) { return 0, s.err }

var testFP = fingerprint.Compute("10.0.0.5", "Mozilla/5.0")

// seedSession persists a session with the given TTL and returns its ID.
func seedSession(t *testing.T, store sessionkit.Store, ttl time.Duration, fp fingerprint.Fingerprint) string {
	t.Helper()
	rec, err := sessionkit.NewRecord(fp)
	require.NoError(t, err)
	rec.Set("seed", sessionkit.Bool(true))
	_, err = store.Save(context.Background(), rec, ttl, 0)
	require.NoError(t, err)
	return rec.ID()
}

func TestManagerLoadOrCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no token creates fresh anonymous session", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy)

		rec, err := manager.LoadOrCreate(ctx, "", testFP)
		require.NoError(t, err)
		assert.Len(t, rec.ID(), 43)
		assert.Equal(t, int64(0), rec.Version())
		assert.Empty(t, rec.Data())
		assert.Equal(t, 0, spy.loads, "malformed tokens skip the backend entirely")
	})

	t.Run("malformed token creates fresh session without backend call", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy)

		rec, err := manager.LoadOrCreate(ctx, "not!a!valid!token", testFP)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.Version())
		assert.Equal(t, 0, spy.loads)
	})

	t.Run("unknown token degrades to new session", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy)

		ghost, err := sessionkit.NewRecord(testFP)
		require.NoError(t, err)

		rec, err := manager.LoadOrCreate(ctx, ghost.ID(), testFP)
		require.NoError(t, err)
		assert.NotEqual(t, ghost.ID(), rec.ID())
		assert.Equal(t, 1, spy.loads)
	})

	t.Run("valid token returns stored session", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy)
		id := seedSession(t, spy, time.Hour, testFP)

		rec, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID())
		assert.Equal(t, int64(1), rec.Version())
		b, _ := rec.GetBool("seed")
		assert.True(t, b)
	})

	t.Run("backend unavailable degrades to anonymous session", func(t *testing.T) {
		manager := sessionkit.New(&failStore{err: sessionkit.ErrBackendUnavailable})

		ghost, err := sessionkit.NewRecord(testFP)
		require.NoError(t, err)

		rec, err := manager.LoadOrCreate(ctx, ghost.ID(), testFP)
		require.NoError(t, err, "backend degradation must not fail the request")
		assert.Equal(t, int64(0), rec.Version())
	})

	t.Run("corrupted payload degrades to anonymous session", func(t *testing.T) {
		manager := sessionkit.New(&failStore{err: sessionkit.ErrCorrupted})

		ghost, err := sessionkit.NewRecord(testFP)
		require.NoError(t, err)

		rec, err := manager.LoadOrCreate(ctx, ghost.ID(), testFP)
		require.NoError(t, err)
		assert.NotEqual(t, ghost.ID(), rec.ID())
	})
}

func TestManagerFingerprintPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storedFP := fingerprint.Compute("10.0.0.5", "Mozilla/5.0")
	movedFP := fingerprint.Compute("10.0.1.5", "Mozilla/5.0")

	t.Run("strict mismatch issues new session, old record untouched", func(t *testing.T) {
		spy := newSpyStore(t)
		var logs bytes.Buffer
		manager := sessionkit.New(spy,
			sessionkit.WithFingerprintMode(fingerprint.ModeStrict),
			sessionkit.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		)
		id := seedSession(t, spy, time.Hour, storedFP)

		rec, err := manager.LoadOrCreate(ctx, id, movedFP)
		require.NoError(t, err)
		assert.NotEqual(t, id, rec.ID())
		assert.Equal(t, movedFP, rec.Fingerprint())

		// The security log carries the invalidation sentinel.
		assert.Contains(t, logs.String(), sessionkit.ErrInvalidated.Error())

		// The hijacked-looking record stays in storage as-is.
		old, _, err := spy.Store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), old.Version())
	})

	t.Run("soft mismatch keeps session", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy,
			sessionkit.WithFingerprintMode(fingerprint.ModeSoft),
		)
		id := seedSession(t, spy, time.Hour, storedFP)

		rec, err := manager.LoadOrCreate(ctx, id, movedFP)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID())
	})

	t.Run("off never invalidates", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy,
			sessionkit.WithFingerprintMode(fingerprint.ModeOff),
		)
		id := seedSession(t, spy, time.Hour, storedFP)

		rec, err := manager.LoadOrCreate(ctx, id, movedFP)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID())
	})
}

func TestManagerFinalize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("clean record with healthy ttl issues zero backend calls", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy,
			sessionkit.WithTTL(10*time.Hour),
			sessionkit.WithTTLRefreshThreshold(0.5),
		)
		id := seedSession(t, spy, 8*time.Hour, testFP) // 80% remaining

		rec, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)

		require.NoError(t, manager.Finalize(ctx, rec))
		assert.Equal(t, 0, spy.saves)
		assert.Equal(t, 0, spy.refreshes)
	})

	t.Run("clean record below threshold refreshes ttl only", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy,
			sessionkit.WithTTL(10*time.Hour),
			sessionkit.WithTTLRefreshThreshold(0.5),
		)
		id := seedSession(t, spy, 3*time.Hour, testFP) // 30% remaining

		rec, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)

		require.NoError(t, manager.Finalize(ctx, rec))
		assert.Equal(t, 0, spy.saves)
		assert.Equal(t, 1, spy.refreshes)

		_, ttl, err := spy.Store.Load(ctx, id)
		require.NoError(t, err)
		assert.Greater(t, ttl, 9*time.Hour)
	})

	t.Run("dirty record saves once with loaded version", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy, sessionkit.WithTTL(10*time.Hour))
		id := seedSession(t, spy, 10*time.Hour, testFP)

		rec, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)

		rec.Set("cart", sessionkit.Array(sessionkit.String("sku-1")))
		assert.Equal(t, 1, spy.saves, "seed only; EndOfRequest defers the write")

		require.NoError(t, manager.Finalize(ctx, rec))
		assert.Equal(t, 2, spy.saves)
		assert.Equal(t, int64(1), spy.lastExpected, "save must carry the version loaded at request start")
		assert.Equal(t, 0, spy.refreshes)

		assert.False(t, rec.IsDirty(), "dirty is cleared after a successful save")
		assert.Equal(t, int64(2), rec.Version())
	})

	t.Run("never-persisted clean record issues zero backend calls", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy)

		rec, err := manager.LoadOrCreate(ctx, "", testFP)
		require.NoError(t, err)

		require.NoError(t, manager.Finalize(ctx, rec))
		assert.Equal(t, 0, spy.saves)
		assert.Equal(t, 0, spy.refreshes)
	})

	t.Run("save failure surfaces as non-fatal error, dirty unchanged", func(t *testing.T) {
		manager := sessionkit.New(&failStore{err: sessionkit.ErrBackendUnavailable})

		rec, err := manager.LoadOrCreate(ctx, "", testFP)
		require.NoError(t, err)
		rec.Set("k", sessionkit.Int(1))

		err = manager.Finalize(ctx, rec)
		assert.ErrorIs(t, err, sessionkit.ErrBackendUnavailable)
		assert.True(t, rec.IsDirty(), "a failed save leaves dirty unchanged")
	})
}

func TestManagerSaveStrategy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("immediate persists dirty record right away", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy,
			sessionkit.WithSaveStrategy(sessionkit.SaveImmediate),
		)

		rec, err := manager.LoadOrCreate(ctx, "", testFP)
		require.NoError(t, err)
		rec.Set("k", sessionkit.Int(1))

		require.NoError(t, manager.Persist(ctx, rec))
		assert.Equal(t, 1, spy.saves)
		assert.False(t, rec.IsDirty())

		// Nothing left for finalize to do.
		require.NoError(t, manager.Finalize(ctx, rec))
		assert.Equal(t, 1, spy.saves)
	})

	t.Run("end of request defers to finalize", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy)

		rec, err := manager.LoadOrCreate(ctx, "", testFP)
		require.NoError(t, err)
		rec.Set("k", sessionkit.Int(1))

		require.NoError(t, manager.Persist(ctx, rec))
		assert.Equal(t, 0, spy.saves)

		require.NoError(t, manager.Finalize(ctx, rec))
		assert.Equal(t, 1, spy.saves)
	})

	t.Run("per-call strategy override", func(t *testing.T) {
		spy := newSpyStore(t)
		manager := sessionkit.New(spy) // global EndOfRequest

		rec, err := manager.LoadOrCreate(ctx, "", testFP)
		require.NoError(t, err)
		rec.Set("k", sessionkit.Int(1))

		require.NoError(t, manager.Persist(ctx, rec, sessionkit.SaveImmediate))
		assert.Equal(t, 1, spy.saves)
	})
}

func TestManagerConflictPolicies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reject surfaces version conflict", func(t *testing.T) {
		store := sessionkit.NewMemoryStore(0)
		t.Cleanup(func() { _ = store.Close() })
		manager := sessionkit.New(store) // RejectOnConflict by default
		id := seedSession(t, store, time.Hour, testFP)

		recA, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)
		recB, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)

		recA.Set("winner", sessionkit.String("a"))
		require.NoError(t, manager.Finalize(ctx, recA))

		recB.Set("winner", sessionkit.String("b"))
		err = manager.Finalize(ctx, recB)
		assert.ErrorIs(t, err, sessionkit.ErrVersionConflict, "stale writer must never silently overwrite")
		assert.True(t, recB.IsDirty())

		// A's write survived.
		stored, _, err := store.Load(ctx, id)
		require.NoError(t, err)
		winner, _ := stored.GetString("winner")
		assert.Equal(t, "a", winner)
	})

	t.Run("merge re-applies only this request's delta", func(t *testing.T) {
		store := sessionkit.NewMemoryStore(0)
		t.Cleanup(func() { _ = store.Close() })
		manager := sessionkit.New(store,
			sessionkit.WithMergePolicy(sessionkit.MergeOnConflict),
		)
		id := seedSession(t, store, time.Hour, testFP)

		recA, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)
		recB, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)

		recA.Set("from_a", sessionkit.Int(1))
		require.NoError(t, manager.Finalize(ctx, recA))

		recB.Set("from_b", sessionkit.Int(2))
		require.NoError(t, manager.Finalize(ctx, recB))
		assert.Equal(t, int64(3), recB.Version())

		stored, _, err := store.Load(ctx, id)
		require.NoError(t, err)
		a, okA := stored.GetInt("from_a")
		b, okB := stored.GetInt("from_b")
		assert.True(t, okA, "merge must preserve the other writer's fields")
		assert.True(t, okB)
		assert.Equal(t, int64(1), a)
		assert.Equal(t, int64(2), b)
	})

	t.Run("merge retries are bounded", func(t *testing.T) {
		store := sessionkit.NewMemoryStore(0)
		t.Cleanup(func() { _ = store.Close() })
		manager := sessionkit.New(store,
			sessionkit.WithMergePolicy(sessionkit.MergeOnConflict),
			sessionkit.WithConflictRetries(0),
		)
		id := seedSession(t, store, time.Hour, testFP)

		recA, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)
		recB, err := manager.LoadOrCreate(ctx, id, testFP)
		require.NoError(t, err)

		recA.Set("k", sessionkit.Int(1))
		require.NoError(t, manager.Finalize(ctx, recA))

		recB.Set("k", sessionkit.Int(2))
		err = manager.Finalize(ctx, recB)
		assert.ErrorIs(t, err, sessionkit.ErrVersionConflict)
	})
}

func TestManagerDestroy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	spy := newSpyStore(t)
	manager := sessionkit.New(spy)
	id := seedSession(t, spy, time.Hour, testFP)

	rec, err := manager.LoadOrCreate(ctx, id, testFP)
	require.NoError(t, err)

	require.NoError(t, manager.Destroy(ctx, rec))
	assert.Equal(t, 1, spy.deletes)

	_, _, err = spy.Store.Load(ctx, id)
	assert.ErrorIs(t, err, sessionkit.ErrNotFound)
}

func TestManagerCountActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := sessionkit.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	manager := sessionkit.New(store)

	for range 4 {
		seedSession(t, store, time.Hour, testFP)
	}

	stats, err := manager.CountActive(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.ApproximateCount)
	assert.GreaterOrEqual(t, stats.ScanDuration, time.Duration(0))
}

// prefixStore exposes a key prefix and records what prefix the scan ran with.
type prefixStore struct {
	sessionkit.Store
	scannedPrefix string
}

func (s *prefixStore) KeyPrefix() string { return "sess:" }

func (s *prefixStore) ScanCount(ctx context.Context, keyPrefix string, batchSize int) (int64, error) {
	s.scannedPrefix = keyPrefix
	return s.Store.ScanCount(ctx, keyPrefix, batchSize)
}

func TestManagerCountActiveResolvesPrefix(t *testing.T) {
	t.Parallel()

	mem := sessionkit.NewMemoryStore(0)
	t.Cleanup(func() { _ = mem.Close() })
	store := &prefixStore{Store: mem}
	manager := sessionkit.New(store)

	stats, err := manager.CountActive(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "sess:", stats.Prefix)
	assert.Equal(t, "sess:", store.scannedPrefix, "the reported prefix and the scanned prefix must agree")

	// An explicit prefix wins over the store's own.
	_, err = manager.CountActive(context.Background(), "other:")
	require.NoError(t, err)
	assert.Equal(t, "other:", store.scannedPrefix)
}

func TestNewPanicsWithoutStore(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		sessionkit.New(nil)
	})
}
