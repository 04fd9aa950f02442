package sessionkit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/sessionkit/fingerprint"
)

// Manager orchestrates the per-request session lifecycle: it loads or
// creates records, applies the fingerprint policy, and decides at response
// time whether to persist, merely refresh the TTL, or do nothing.
//
// A single Manager is constructed at startup and shared by all requests; all
// per-request state travels with the Record, so no lock is held across a
// request's lifetime.
type Manager struct {
	store Store
	cfg   Config
	log   *slog.Logger
}

// New creates a session manager backed by the given store.
// Panics when store is nil: running without persistence is a misconfiguration
// that must fail at startup, not at request time.
func New(store Store, opts ...Option) *Manager {
	if store == nil {
		panic("sessionkit: store is required")
	}

	m := &Manager{
		store: store,
		cfg:   DefaultConfig(),
		log:   slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// LoadOrCreate resolves a client token to a session record. A missing,
// malformed, expired or unreadable session — and any backend degradation —
// yields a fresh anonymous record instead of an error, so the request always
// proceeds. Fingerprint policy is applied to loaded records: a strict
// mismatch discards the loaded record (left untouched in storage) and issues
// a new one.
func (m *Manager) LoadOrCreate(ctx context.Context, token string, observed fingerprint.Fingerprint) (*Record, error) {
	if !validID(token) {
		return NewRecord(observed)
	}

	cctx, cancel := m.commandContext(ctx)
	rec, ttlLeft, err := m.store.Load(cctx, token)
	cancel()

	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			// Expired or never existed; silently start over.
		case errors.Is(err, ErrCorrupted):
			m.log.ErrorContext(ctx, "discarding corrupted session payload",
				slog.String("session_id", token))
		default:
			m.log.WarnContext(ctx, "session load degraded to anonymous session",
				slog.String("session_id", token),
				slog.Any("error", err))
		}
		return NewRecord(observed)
	}

	switch fingerprint.Validate(rec.Fingerprint(), observed, m.cfg.FingerprintMode) {
	case fingerprint.MismatchInvalidated:
		m.log.WarnContext(ctx, "session fingerprint mismatch, session invalidated",
			slog.Any("error", ErrInvalidated),
			slog.String("session_id", token),
			slog.String("stored_ip_prefix", rec.Fingerprint().IPPrefix),
			slog.String("observed_ip_prefix", observed.IPPrefix))
		return NewRecord(observed)
	case fingerprint.MismatchLogged:
		m.log.WarnContext(ctx, "session fingerprint mismatch tolerated",
			slog.String("session_id", token),
			slog.String("stored_ip_prefix", rec.Fingerprint().IPPrefix),
			slog.String("observed_ip_prefix", observed.IPPrefix))
	}

	rec.Touch()
	rec.ttlRemaining = ttlLeft
	return rec, nil
}

// Persist applies the save strategy to a mutated record. With SaveImmediate
// a dirty record is written right away; with SaveEndOfRequest persistence is
// deferred to Finalize. The optional strategy argument overrides the global
// one for this call.
func (m *Manager) Persist(ctx context.Context, rec *Record, strategy ...SaveStrategy) error {
	s := m.cfg.SaveStrategy
	if len(strategy) > 0 {
		s = strategy[0]
	}

	if s == SaveImmediate && rec.IsDirty() {
		return m.saveSession(ctx, rec)
	}
	return nil
}

// Finalize runs once at response time. Dirty records are saved; clean records
// whose remaining TTL dropped below the refresh threshold get a TTL-only
// refresh that never rewrites payload bytes; everything else issues zero
// backend calls. Errors are logged and returned as non-fatal: the response
// already computed should still be sent.
func (m *Manager) Finalize(ctx context.Context, rec *Record) error {
	if rec.IsDirty() {
		if err := m.saveSession(ctx, rec); err != nil {
			m.log.WarnContext(ctx, "session save failed at finalize",
				slog.String("session_id", rec.ID()),
				slog.Any("error", err))
			return err
		}
		return nil
	}

	// Never-persisted clean records have nothing to refresh.
	if rec.Version() == 0 {
		return nil
	}

	if m.cfg.DefaultTTL <= 0 {
		return nil
	}
	fraction := float64(rec.ttlRemaining) / float64(m.cfg.DefaultTTL)
	if fraction >= m.cfg.TTLRefreshThreshold {
		return nil
	}

	cctx, cancel := m.commandContext(ctx)
	ok, err := m.store.RefreshTTL(cctx, rec.ID(), m.cfg.DefaultTTL)
	cancel()
	if err != nil {
		m.log.WarnContext(ctx, "session ttl refresh failed",
			slog.String("session_id", rec.ID()),
			slog.Any("error", err))
		return err
	}
	if !ok {
		// The record expired between load and finalize. Session loss, not an
		// error: the client is treated as anonymous on its next request.
		m.log.InfoContext(ctx, "session expired before ttl refresh",
			slog.String("session_id", rec.ID()))
		return nil
	}

	rec.ttlRemaining = m.cfg.DefaultTTL
	return nil
}

// Destroy deletes the session record (logout).
func (m *Manager) Destroy(ctx context.Context, rec *Record) error {
	cctx, cancel := m.commandContext(ctx)
	defer cancel()
	return m.store.Delete(cctx, rec.ID())
}

// saveSession writes the record with optimistic version checking. On
// conflict the configured merge policy applies: RejectOnConflict surfaces
// ErrVersionConflict for application-level handling; MergeOnConflict reloads
// the stored record, re-applies only this request's journaled changes and
// retries, bounded by ConflictRetries.
func (m *Manager) saveSession(ctx context.Context, rec *Record) error {
	retries := m.cfg.ConflictRetries
	for {
		cctx, cancel := m.commandContext(ctx)
		newVersion, err := m.store.Save(cctx, rec, m.cfg.DefaultTTL, rec.Version())
		cancel()

		if err == nil {
			rec.markSaved(newVersion, m.cfg.DefaultTTL)
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		if m.cfg.MergePolicy != MergeOnConflict || retries <= 0 {
			return err
		}
		retries--

		lctx, lcancel := m.commandContext(ctx)
		fresh, ttlLeft, lerr := m.store.Load(lctx, rec.ID())
		lcancel()

		switch {
		case lerr == nil:
			fresh.ttlRemaining = ttlLeft
			rec.applyJournal(fresh)
		case errors.Is(lerr, ErrNotFound):
			// The winning writer's record already vanished; recreate.
			rec.version = 0
		default:
			return lerr
		}
	}
}

// commandContext bounds a single backend command with the configured timeout.
func (m *Manager) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.CommandTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.cfg.CommandTimeout)
}
