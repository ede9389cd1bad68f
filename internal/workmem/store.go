// Package workmem implements working memory: short-lived, per-session
// key-value state with time-based expiry.
//
// Patches shallow-merge into the session's state. Every key remembers when it
// was last written; a session whose newest write is older than the TTL reads
// as absent, and individual keys older than the TTL are dropped from reads.
// Storage is pluggable (see Backend); expiry is enforced on read and by an
// explicit sweep.
package workmem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/sage/internal/logging"
)

// ErrEmptySession is returned when a patch has no session id.
var ErrEmptySession = errors.New("workmem: session id is required")

// State is a read-only snapshot of a session's merged state.
type State map[string]any

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Store serializes patches per session on top of a Backend.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     Clock
	logger  *zap.Logger
	locks   *keyedMutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(c Clock) Option {
	return func(s *Store) { s.now = c }
}

// WithLogger sets the logger used for degraded backend operations.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l).Named("workmem") }
}

// New creates a Store. A nil backend falls back to an in-process map.
func New(backend Backend, ttl time.Duration, opts ...Option) *Store {
	if backend == nil {
		backend = NewMapBackend()
	}
	s := &Store{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		logger:  zap.NewNop(),
		locks:   newKeyedMutex(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL returns the configured expiry window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Patch merges partial into the session's state. Keys present in partial
// overwrite, absent keys are preserved. Patches to the same session are
// serialized; different sessions never block each other.
func (s *Store) Patch(ctx context.Context, sessionID string, partial map[string]any) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	now := s.now()
	rec, ok, err := s.backend.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("workmem: load %s: %w", sessionID, err)
	}
	if !ok || s.expired(rec.UpdatedAt, now) {
		rec = Record{SessionID: sessionID, Values: make(map[string]Entry, len(partial))}
	}
	if rec.Values == nil {
		rec.Values = make(map[string]Entry, len(partial))
	}

	for k, v := range partial {
		rec.Values[k] = Entry{Value: v, WrittenAt: now}
	}
	rec.UpdatedAt = now

	if err := s.backend.Save(ctx, rec); err != nil {
		return fmt.Errorf("workmem: save %s: %w", sessionID, err)
	}
	return nil
}

// Get returns the session's state if it was written within the TTL.
// Missing, expired and unreadable sessions all return ok=false.
func (s *Store) Get(ctx context.Context, sessionID string) (State, bool) {
	if sessionID == "" {
		return State{}, false
	}
	rec, ok, err := s.backend.Load(ctx, sessionID)
	if err != nil {
		s.logger.Warn("working memory unavailable, treating session as empty",
			zap.String("session_id", sessionID), zap.Error(err))
		return State{}, false
	}
	now := s.now()
	if !ok || s.expired(rec.UpdatedAt, now) {
		return State{}, false
	}

	state := make(State, len(rec.Values))
	for k, e := range rec.Values {
		if s.expired(e.WrittenAt, now) {
			continue
		}
		state[k] = e.Value
	}
	return state, true
}

// Sweep deletes every expired record from the backend.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	n, err := s.backend.SweepBefore(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("workmem: sweep: %w", err)
	}
	return n, nil
}

// StartSweeper runs Sweep every interval until ctx is canceled. The returned
// channel is closed once the sweeper goroutine has exited.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Sweep(ctx)
				if err != nil {
					s.logger.Warn("sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Debug("swept expired sessions", zap.Int("count", n))
				}
			}
		}
	}()
	return done
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// expired reports whether a write at t is outside the TTL window at now.
// A non-positive TTL disables expiry.
func (s *Store) expired(t, now time.Time) bool {
	if s.ttl <= 0 {
		return false
	}
	return now.Sub(t) > s.ttl
}
