package workmem

import (
	"context"
	"sync"
	"time"
)

// Entry is one key of a session's state with the time it was last written.
type Entry struct {
	Value     any       `json:"value"`
	WrittenAt time.Time `json:"written_at"`
}

// Record is the stored form of one session's working memory.
type Record struct {
	SessionID string           `json:"session_id"`
	Values    map[string]Entry `json:"values"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// clone returns a copy whose map can be mutated without touching r.
func (r Record) clone() Record {
	out := Record{SessionID: r.SessionID, UpdatedAt: r.UpdatedAt, Values: make(map[string]Entry, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// Backend persists records. Implementations must be safe for concurrent use;
// per-session read-modify-write atomicity is provided by Store, not by the
// backend.
type Backend interface {
	// Load returns the record for sessionID, or ok=false if none is stored.
	Load(ctx context.Context, sessionID string) (rec Record, ok bool, err error)
	// Save replaces the stored record for rec.SessionID.
	Save(ctx context.Context, rec Record) error
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, sessionID string) error
	// SweepBefore deletes every record last written before cutoff and
	// returns how many were removed.
	SweepBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// ─── MapBackend ──────────────────────────────────────────────────────────────

// MapBackend keeps records in process memory.
type MapBackend struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMapBackend creates an empty in-process backend.
func NewMapBackend() *MapBackend {
	return &MapBackend{records: make(map[string]Record)}
}

func (b *MapBackend) Load(_ context.Context, sessionID string) (Record, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[sessionID]
	if !ok {
		return Record{}, false, nil
	}
	return rec.clone(), true, nil
}

func (b *MapBackend) Save(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.SessionID] = rec.clone()
	return nil
}

func (b *MapBackend) Delete(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, sessionID)
	return nil
}

func (b *MapBackend) SweepBefore(_ context.Context, cutoff time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, rec := range b.records {
		if rec.UpdatedAt.Before(cutoff) {
			delete(b.records, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many records are stored, expired or not.
func (b *MapBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

func (b *MapBackend) Close() error { return nil }
