package sessionkit

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessionkit/fingerprint"
)

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithLogger sets the structured logger used for degradation and security
// events. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithTTL sets the default session TTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.cfg.DefaultTTL = ttl
	}
}

// WithTTLRefreshThreshold sets the remaining-TTL fraction below which clean
// sessions get their expiry refreshed at finalize.
func WithTTLRefreshThreshold(threshold float64) Option {
	return func(m *Manager) {
		m.cfg.TTLRefreshThreshold = threshold
	}
}

// WithCommandTimeout bounds each backend command issued by the manager.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.cfg.CommandTimeout = timeout
	}
}

// WithFingerprintMode sets the fingerprint validation mode.
func WithFingerprintMode(mode fingerprint.Mode) Option {
	return func(m *Manager) {
		m.cfg.FingerprintMode = mode
	}
}

// WithSaveStrategy sets the global save strategy.
func WithSaveStrategy(strategy SaveStrategy) Option {
	return func(m *Manager) {
		m.cfg.SaveStrategy = strategy
	}
}

// WithMergePolicy sets the conflict resolution policy.
func WithMergePolicy(policy MergePolicy) Option {
	return func(m *Manager) {
		m.cfg.MergePolicy = policy
	}
}

// WithConflictRetries bounds save retries on version conflicts.
func WithConflictRetries(retries int) Option {
	return func(m *Manager) {
		m.cfg.ConflictRetries = retries
	}
}

// WithScanBatchSize tunes the per-round-trip batch for approximate counting.
func WithScanBatchSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.cfg.ScanBatchSize = size
		}
	}
}
