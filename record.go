package sessionkit

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/dmitrymomot/sessionkit/fingerprint"
)

// idByteLen is the entropy of a session ID: 32 random bytes (256 bits),
// base64url-encoded to 43 characters.
const idByteLen = 32

var idStrLen = base64.RawURLEncoding.EncodedLen(idByteLen)

// Record is a single session: an opaque ID, application data, one-shot flash
// values and the client fingerprint captured at creation. All mutations go
// through accessor methods so the dirty flag and the change journal stay
// accurate; reads never mark the record dirty.
type Record struct {
	id             string
	data           map[string]Value
	flash          map[string]Value
	fp             fingerprint.Fingerprint
	createdAt      time.Time
	lastAccessedAt time.Time
	version        int64

	dirty bool

	// Change journal for the merge-on-conflict policy: only the keys this
	// request actually touched are re-applied on a freshly loaded record.
	dataSet     map[string]Value
	dataRemoved map[string]struct{}
	flashSet    map[string]Value
	flashTaken  map[string]struct{}

	// Remaining TTL observed at load time; manager-local, never persisted.
	ttlRemaining time.Duration
}

// NewRecord creates an anonymous session with a fresh cryptographically
// random ID and version 0 (never persisted yet).
func NewRecord(fp fingerprint.Fingerprint) (*Record, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Record{
		id:             id,
		data:           make(map[string]Value),
		flash:          make(map[string]Value),
		fp:             fp,
		createdAt:      now,
		lastAccessedAt: now,
	}, nil
}

// ID returns the opaque session identifier.
func (r *Record) ID() string { return r.id }

// Version returns the last persisted version (0 for never persisted).
func (r *Record) Version() int64 { return r.version }

// Fingerprint returns the client fingerprint captured at creation.
func (r *Record) Fingerprint() fingerprint.Fingerprint { return r.fp }

// CreatedAt returns the creation timestamp.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// LastAccessedAt returns the last access timestamp.
func (r *Record) LastAccessedAt() time.Time { return r.lastAccessedAt }

// IsDirty reports whether data or flash changed since load.
func (r *Record) IsDirty() bool { return r.dirty }

// Get reads a data value. Reading never marks the record dirty.
func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.data[key]
	return v, ok
}

// GetString reads a string data value.
func (r *Record) GetString(key string) (string, bool) {
	v, ok := r.data[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// GetInt reads an integer data value.
func (r *Record) GetInt(key string) (int64, bool) {
	v, ok := r.data[key]
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// GetBool reads a boolean data value.
func (r *Record) GetBool(key string) (bool, bool) {
	v, ok := r.data[key]
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// Set upserts a data value and marks the record dirty.
func (r *Record) Set(key string, value Value) {
	r.data[key] = value
	r.journalDataSet(key, value)
	r.dirty = true
}

// Remove deletes a data key. The record is dirtied only if the key existed.
func (r *Record) Remove(key string) {
	if _, ok := r.data[key]; !ok {
		return
	}
	delete(r.data, key)
	r.journalDataRemoved(key)
	r.dirty = true
}

// FlashSet stores a one-shot value and marks the record dirty.
func (r *Record) FlashSet(key string, value Value) {
	r.flash[key] = value
	r.journalFlashSet(key, value)
	r.dirty = true
}

// FlashTake consumes a one-shot value: the key is removed on read. A miss is
// a no-op and does not dirty the record.
func (r *Record) FlashTake(key string) (Value, bool) {
	v, ok := r.flash[key]
	if !ok {
		return Value{}, false
	}
	delete(r.flash, key)
	r.journalFlashTaken(key)
	r.dirty = true
	return v, true
}

// Touch updates the last-accessed timestamp. It deliberately does not dirty
// the record: plain access must never force a full payload rewrite.
func (r *Record) Touch() {
	r.lastAccessedAt = time.Now()
}

// Data returns a copy of the data map.
func (r *Record) Data() map[string]Value {
	out := make(map[string]Value, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out
}

// Flash returns a copy of the flash map without consuming any keys.
func (r *Record) Flash() map[string]Value {
	out := make(map[string]Value, len(r.flash))
	for k, v := range r.flash {
		out[k] = v
	}
	return out
}

// TTLRemaining returns the remaining TTL observed when the record was loaded,
// or zero for never-persisted records.
func (r *Record) TTLRemaining() time.Duration { return r.ttlRemaining }

func (r *Record) journalDataSet(key string, value Value) {
	if r.dataSet == nil {
		r.dataSet = make(map[string]Value)
	}
	r.dataSet[key] = value
	delete(r.dataRemoved, key)
}

func (r *Record) journalDataRemoved(key string) {
	if r.dataRemoved == nil {
		r.dataRemoved = make(map[string]struct{})
	}
	r.dataRemoved[key] = struct{}{}
	delete(r.dataSet, key)
}

func (r *Record) journalFlashSet(key string, value Value) {
	if r.flashSet == nil {
		r.flashSet = make(map[string]Value)
	}
	r.flashSet[key] = value
	delete(r.flashTaken, key)
}

func (r *Record) journalFlashTaken(key string) {
	if r.flashTaken == nil {
		r.flashTaken = make(map[string]struct{})
	}
	r.flashTaken[key] = struct{}{}
	delete(r.flashSet, key)
}

// applyJournal replays this record's change journal on top of freshly loaded
// state, implementing the merge-on-conflict policy.
func (r *Record) applyJournal(fresh *Record) {
	r.data = fresh.data
	r.flash = fresh.flash
	r.version = fresh.version
	r.ttlRemaining = fresh.ttlRemaining

	for k, v := range r.dataSet {
		r.data[k] = v
	}
	for k := range r.dataRemoved {
		delete(r.data, k)
	}
	for k, v := range r.flashSet {
		r.flash[k] = v
	}
	for k := range r.flashTaken {
		delete(r.flash, k)
	}
}

// markSaved records a successful persist: the version advances and the dirty
// state plus journal are reset. A failed save leaves everything untouched.
func (r *Record) markSaved(newVersion int64, ttl time.Duration) {
	r.version = newVersion
	r.ttlRemaining = ttl
	r.dirty = false
	r.dataSet = nil
	r.dataRemoved = nil
	r.flashSet = nil
	r.flashTaken = nil
}

// validID reports whether token looks like an ID this package issued.
func validID(token string) bool {
	if len(token) != idStrLen {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

func generateID() (string, error) {
	b := make([]byte, idByteLen)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
