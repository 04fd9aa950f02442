package sessionkit

import "context"

type recordContextKey struct{}

// WithRecord adds a session record to the context.
func WithRecord(ctx context.Context, rec *Record) context.Context {
	return context.WithValue(ctx, recordContextKey{}, rec)
}

// RecordFromContext retrieves a session record from the context.
func RecordFromContext(ctx context.Context) (*Record, bool) {
	rec, ok := ctx.Value(recordContextKey{}).(*Record)
	return rec, ok
}

// MustRecordFromContext retrieves a session record from the context or panics.
func MustRecordFromContext(ctx context.Context) *Record {
	rec, ok := RecordFromContext(ctx)
	if !ok {
		panic("sessionkit: record not found in context")
	}
	return rec
}
