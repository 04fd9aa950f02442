package sessionkit

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"
)

// MemoryStore is the in-process Store implementation. Entries are held in a
// sync.Map with a per-entry mutex, so concurrent requests for unrelated
// sessions never serialize on a global lock.
type MemoryStore struct {
	entries   sync.Map // id -> *memoryEntry
	ticker    *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

type memoryEntry struct {
	mu        sync.Mutex
	payload   []byte
	version   int64
	expiresAt time.Time
	dead      bool
}

// expired reports whether the entry holds a live record. Placeholder entries
// (no payload yet) and past-expiry entries count as absent, version 0.
func (e *memoryEntry) expired(now time.Time) bool {
	return e.payload == nil || !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory session store. A positive
// cleanupInterval starts a janitor goroutine that evicts expired entries;
// expired entries are also dropped lazily on access.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		done: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		go s.cleanupLoop()
	}

	return s
}

// Load returns the stored record and its remaining TTL without extending it.
func (s *MemoryStore) Load(ctx context.Context, id string) (*Record, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, mapContextErr(err)
	}

	v, ok := s.entries.Load(id)
	if !ok {
		return nil, 0, ErrNotFound
	}
	e := v.(*memoryEntry)

	e.mu.Lock()
	now := time.Now()
	if e.dead || e.expired(now) {
		e.mu.Unlock()
		return nil, 0, ErrNotFound
	}
	// Payload slices are replaced wholesale on save, never mutated in place,
	// so holding the reference past the unlock is safe.
	payload := e.payload
	version := e.version
	ttl := e.expiresAt.Sub(now)
	e.mu.Unlock()

	rec, err := DecodeRecord(id, payload, version)
	if err != nil {
		return nil, 0, err
	}
	return rec, ttl, nil
}

// Save writes the full record if the stored version matches expectedVersion.
// Expired or missing entries count as version 0.
func (s *MemoryStore) Save(ctx context.Context, rec *Record, ttl time.Duration, expectedVersion int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, mapContextErr(err)
	}

	payload, err := EncodeRecord(rec)
	if err != nil {
		return 0, err
	}

	for {
		v, _ := s.entries.LoadOrStore(rec.ID(), &memoryEntry{})
		e := v.(*memoryEntry)

		e.mu.Lock()
		if e.dead {
			// Lost a race with Delete; the map slot was reclaimed.
			e.mu.Unlock()
			continue
		}

		stored := e.version
		if e.expired(time.Now()) {
			stored = 0
		}
		if stored != expectedVersion {
			if e.payload == nil {
				// Drop the placeholder LoadOrStore may have just created, or
				// it would linger in the map with no janitor to evict it.
				e.dead = true
				e.mu.Unlock()
				s.entries.Delete(rec.ID())
				return 0, ErrVersionConflict
			}
			e.mu.Unlock()
			return 0, ErrVersionConflict
		}

		e.payload = payload
		e.version = stored + 1
		e.expiresAt = time.Now().Add(ttl)
		newVersion := e.version
		e.mu.Unlock()
		return newVersion, nil
	}
}

// RefreshTTL extends the expiry only; payload and version are untouched.
func (s *MemoryStore) RefreshTTL(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, mapContextErr(err)
	}

	v, ok := s.entries.Load(id)
	if !ok {
		return false, nil
	}
	e := v.(*memoryEntry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead || e.expired(time.Now()) {
		return false, nil
	}
	e.expiresAt = time.Now().Add(ttl)
	return true, nil
}

// Delete removes the record. Missing records are not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return mapContextErr(err)
	}

	v, ok := s.entries.Load(id)
	if !ok {
		return nil
	}
	e := v.(*memoryEntry)

	e.mu.Lock()
	e.dead = true
	e.mu.Unlock()
	s.entries.Delete(id)
	return nil
}

// ScanCount counts live entries under keyPrefix, yielding to the scheduler
// between batches so large maps never monopolize the goroutine.
func (s *MemoryStore) ScanCount(ctx context.Context, keyPrefix string, batchSize int) (int64, error) {
	var (
		count   int64
		visited int
		scanErr error
	)
	now := time.Now()

	s.entries.Range(func(k, v any) bool {
		id := k.(string)
		if keyPrefix != "" && !strings.HasPrefix(id, keyPrefix) {
			return true
		}

		e := v.(*memoryEntry)
		e.mu.Lock()
		live := !e.dead && !e.expired(now)
		e.mu.Unlock()
		if live {
			count++
		}

		visited++
		if batchSize > 0 && visited%batchSize == 0 {
			select {
			case <-ctx.Done():
				scanErr = mapContextErr(ctx.Err())
				return false
			default:
				runtime.Gosched()
			}
		}
		return true
	})

	if scanErr != nil {
		return 0, scanErr
	}
	return count, nil
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.done)
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-s.ticker.C:
			s.removeExpired()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := time.Now()
	s.entries.Range(func(k, v any) bool {
		e := v.(*memoryEntry)
		e.mu.Lock()
		gone := e.expired(now)
		if gone {
			e.dead = true
		}
		e.mu.Unlock()
		if gone {
			s.entries.Delete(k)
		}
		return true
	})
}

// mapContextErr converts context termination into the package taxonomy:
// deadline expiry is a Timeout, explicit cancellation passes through.
func mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
