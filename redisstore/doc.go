// Package redisstore implements the sessionkit.Store interface on Redis.
//
// Each session is a single hash at <prefix><id> with a "payload" field (the
// serialized record) and a "version" field. Writes go through a Lua script
// that compares the stored version with the writer's expected version and
// either applies the full write atomically or reports a conflict, giving
// optimistic concurrency control without distributed locks. TTL refresh is a
// bare PEXPIRE, so it can never change payload bytes or the version.
//
// Approximate session counting uses cursor-driven SCAN in bounded batches,
// which never blocks other traffic the way KEYS would.
//
//	client, err := redisstore.Connect(ctx, cfg)
//	if err != nil { ... }
//	store := redisstore.New(client, cfg.KeyPrefix)
//	manager := sessionkit.New(store)
package redisstore
