package sessionkit

import (
	"errors"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dmitrymomot/sessionkit/fingerprint"
)

// SaveStrategy decides when dirty records hit the backend.
type SaveStrategy string

const (
	// SaveImmediate persists on every mutating Persist call.
	SaveImmediate SaveStrategy = "immediate"
	// SaveEndOfRequest defers persistence to Finalize, one write per request.
	SaveEndOfRequest SaveStrategy = "end_of_request"
)

// MergePolicy decides how save conflicts are resolved after retries.
type MergePolicy string

const (
	// RejectOnConflict surfaces ErrVersionConflict to the caller. Default:
	// correct field-level merging is domain-specific, so merging is opt-in.
	RejectOnConflict MergePolicy = "reject"
	// MergeOnConflict reloads the stored record, re-applies only the keys
	// this request changed, and retries once per attempt.
	MergeOnConflict MergePolicy = "merge"
)

// Config holds session layer configuration. Connection-level settings
// (pool size, connection timeout) belong to the backend packages.
type Config struct {
	// DefaultTTL is the sliding session lifetime.
	DefaultTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// TTLRefreshThreshold is the remaining-TTL fraction (0-1) below which a
	// clean record still gets a TTL refresh at finalize.
	TTLRefreshThreshold float64 `env:"SESSION_TTL_REFRESH_THRESHOLD" envDefault:"0.5"`

	// CommandTimeout bounds every individual backend command.
	CommandTimeout time.Duration `env:"SESSION_COMMAND_TIMEOUT" envDefault:"3s"`

	FingerprintMode fingerprint.Mode `env:"SESSION_FINGERPRINT_MODE" envDefault:"soft"`
	SaveStrategy    SaveStrategy     `env:"SESSION_SAVE_STRATEGY" envDefault:"end_of_request"`
	MergePolicy     MergePolicy      `env:"SESSION_MERGE_POLICY" envDefault:"reject"`

	// ConflictRetries is how many times a conflicting save is retried before
	// ErrVersionConflict is surfaced.
	ConflictRetries int `env:"SESSION_CONFLICT_RETRIES" envDefault:"1"`

	// ScanBatchSize is the per-round-trip batch for approximate counting.
	ScanBatchSize int `env:"SESSION_SCAN_BATCH_SIZE" envDefault:"1000"`
}

// DefaultConfig returns the defaults documented on the Config fields.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:          24 * time.Hour,
		TTLRefreshThreshold: 0.5,
		CommandTimeout:      3 * time.Second,
		FingerprintMode:     fingerprint.ModeSoft,
		SaveStrategy:        SaveEndOfRequest,
		MergePolicy:         RejectOnConflict,
		ConflictRetries:     1,
		ScanBatchSize:       1000,
	}
}

// ErrParsingConfig indicates environment variables could not be parsed.
var ErrParsingConfig = errors.New("session.config_parse_failed")

var dotenvOnce sync.Once

// LoadConfig populates a Config from environment variables, loading a .env
// file first if one exists.
func LoadConfig() (Config, error) {
	dotenvOnce.Do(func() {
		// The .env file is optional; absence is not an error.
		_ = godotenv.Load()
	})

	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}
