// Package sessionkit gives stateless request/response cycles a notion of
// continuous client identity backed by a shared, possibly remote, key-value
// store. It minimizes backend round trips, keeps TTL semantics correct so
// idle sessions expire while active ones never do, and prevents lost updates
// when concurrent requests touch the same logical session.
//
// # Architecture
//
// A Manager orchestrates the session lifecycle per request: it resolves an
// opaque client token into a Record, applies the fingerprint policy, and at
// response time persists dirty records or merely refreshes their TTL. The
// Store interface makes persistence pluggable; an in-memory implementation
// ships in this package, with Redis and PostgreSQL backends in the
// redisstore and pgstore subpackages.
//
//	token ──► Manager.LoadOrCreate ──► fingerprint check ──► *Record
//	handlers mutate the record in memory (Set / Remove / FlashSet / FlashTake)
//	response ──► Manager.Finalize ──► save | ttl refresh | nothing
//
// Transport (cookies, headers), routing and rendering are out of scope: the
// surrounding application hands this layer an opaque token string and reads
// and writes typed values through the record's API.
//
// # Concurrency
//
// Concurrent requests may share one session ID (multiple tabs, retries).
// Instead of distributed locking, every save carries the version observed at
// load; the backend accepts the write only if the stored version still
// matches. Stale writers get ErrVersionConflict and either surface it
// (RejectOnConflict, the default) or re-apply just their own changes on a
// freshly loaded record (MergeOnConflict, opt-in).
//
// # Failure semantics
//
// Backend trouble never fails a request: a session that cannot be loaded
// degrades to a fresh anonymous one, and persistence failures at finalize
// are logged and surfaced as non-fatal. The worst case for the end user is
// being treated as never having had a session.
//
// # Usage
//
//	store := sessionkit.NewMemoryStore(5 * time.Minute)
//	manager := sessionkit.New(store,
//	    sessionkit.WithTTL(24*time.Hour),
//	    sessionkit.WithFingerprintMode(fingerprint.ModeStrict),
//	)
//
//	func handle(ctx context.Context, token string, fp fingerprint.Fingerprint) {
//	    rec, _ := manager.LoadOrCreate(ctx, token, fp)
//	    rec.Set("cart", sessionkit.Array(sessionkit.String("sku-1")))
//	    _ = manager.Finalize(ctx, rec)
//	}
package sessionkit
