package sessionkit

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dmitrymomot/sessionkit/fingerprint"
)

// recordPayload is the single serialized form of a record used by every
// backend. The version deliberately lives outside the payload (as a hash
// field or table column) so backends can compare it without deserializing.
type recordPayload struct {
	Data           map[string]Value        `json:"data"`
	Flash          map[string]Value        `json:"flash,omitempty"`
	Fingerprint    fingerprint.Fingerprint `json:"fingerprint"`
	CreatedAt      time.Time               `json:"created_at"`
	LastAccessedAt time.Time               `json:"last_accessed_at"`
}

// EncodeRecord serializes a record payload for storage. The version is not
// part of the payload; backends persist it alongside.
func EncodeRecord(r *Record) ([]byte, error) {
	return json.Marshal(recordPayload{
		Data:           r.data,
		Flash:          r.flash,
		Fingerprint:    r.fp,
		CreatedAt:      r.createdAt,
		LastAccessedAt: r.lastAccessedAt,
	})
}

// DecodeRecord reconstructs a record from a stored payload. Unreadable
// payloads yield ErrCorrupted so callers can discard the record and log the
// offending key.
func DecodeRecord(id string, payload []byte, version int64) (*Record, error) {
	var p recordPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errors.Join(ErrCorrupted, err)
	}

	if p.Data == nil {
		p.Data = make(map[string]Value)
	}
	if p.Flash == nil {
		p.Flash = make(map[string]Value)
	}

	return &Record{
		id:             id,
		data:           p.Data,
		flash:          p.Flash,
		fp:             p.Fingerprint,
		createdAt:      p.CreatedAt,
		lastAccessedAt: p.LastAccessedAt,
		version:        version,
	}, nil
}
