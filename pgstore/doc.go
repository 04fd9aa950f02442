// Package pgstore implements the sessionkit.Store interface on PostgreSQL.
//
// Sessions live in a single table with payload, version and expires_at
// columns (schema embedded as goose migrations, applied via Migrate).
// Optimistic concurrency uses version-checked single-statement writes;
// TTL is emulated through expires_at, with expired rows invisible to all
// queries and physically removed by CleanupExpired, which is meant to run
// on a periodic schedule.
//
//	pool, err := pgstore.Connect(ctx, cfg)
//	if err != nil { ... }
//	if err := pgstore.Migrate(ctx, pool, cfg, logger); err != nil { ... }
//	store := pgstore.New(pool, cfg.KeyPrefix)
//	manager := sessionkit.New(store)
package pgstore
