package sessionkit

import (
	"context"
	"time"
)

// Stats is the result of an approximate session count. The count is
// eventually consistent: sessions created or expired mid-scan may or may not
// be included.
type Stats struct {
	Prefix           string        `json:"prefix"`
	ApproximateCount int64         `json:"approximate_count"`
	ScanDuration     time.Duration `json:"scan_duration"`
}

// CountActive approximately counts live sessions under keyPrefix (empty
// means the store's configured prefix). The scan runs in bounded batches so
// it never pins a single backend connection for the whole enumeration; the
// caller's context bounds the overall duration.
func (m *Manager) CountActive(ctx context.Context, keyPrefix string) (Stats, error) {
	prefix := keyPrefix
	if prefix == "" {
		if p, ok := m.store.(KeyPrefixer); ok {
			prefix = p.KeyPrefix()
		}
	}

	start := time.Now()
	count, err := m.store.ScanCount(ctx, prefix, m.cfg.ScanBatchSize)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Prefix:           prefix,
		ApproximateCount: count,
		ScanDuration:     time.Since(start),
	}, nil
}
