// Package store is the single owner of durable learner state.
//
// Every write replaces a whole record. Syncable records get a sync envelope
// whose local version is bumped on each write. Backend failures never reach
// callers: the store logs them, switches to an in-memory fallback for the rest
// of the process and publishes events.StorageDegraded.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/infra/memory"
)

// Backend is a durable key-value layer (memory, Redis, Postgres, SQLite).
// Get returns domain.ErrNotFound for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ErrNoChange may be returned by an Update callback to skip the write without
// failing the update.
var ErrNoChange = errors.New("no change")

type Store struct {
	primary  Backend
	fallback *memory.Backend
	events   events.Publisher
	now      func() time.Time

	mu       sync.Mutex
	degraded bool
	lastErr  error
}

func New(primary Backend, pub events.Publisher) *Store {
	return NewWithClock(primary, pub, time.Now)
}

// NewWithClock allows deterministic envelope timestamps in tests.
func NewWithClock(primary Backend, pub events.Publisher, now func() time.Time) *Store {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Store{
		primary:  primary,
		fallback: memory.NewBackend(),
		events:   pub,
		now:      now,
	}
}

// Degraded reports whether the store fell back to memory-only operation.
// The UI shows "progress may not be saved" while this is true.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// LastError returns the storage failure that caused degradation, if any.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Load decodes the record at key into v. It reports false when the record is
// missing or unreadable.
func (s *Store) Load(ctx context.Context, key string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, key, v)
}

// Save replaces the record at key.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, key, v)
}

// Update runs a read-modify-write on key without interleaving other writers.
// v must be a pointer; fn receives whether a record was loaded into it. When fn
// returns an error nothing is written; ErrNoChange is swallowed.
func (s *Store) Update(ctx context.Context, key string, v any, fn func(found bool) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.loadLocked(ctx, key, v)
	if err := fn(found); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return s.saveLocked(ctx, key, v)
}

// Keys lists record keys with the given prefix, excluding sync envelopes.
func (s *Store) Keys(ctx context.Context, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	if !s.degraded {
		keys, err := s.primary.Keys(ctx, prefix)
		if err != nil {
			s.degradeLocked("keys "+prefix, err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	fallbackKeys, _ := s.fallback.Keys(ctx, prefix)
	for _, k := range fallbackKeys {
		seen[k] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		if strings.HasPrefix(k, PrefixEnvelope) && !strings.HasPrefix(prefix, PrefixEnvelope) {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SyncableKeys lists every key the reconciler should drain.
func (s *Store) SyncableKeys(ctx context.Context) []string {
	var out []string
	for _, k := range s.Keys(ctx, "") {
		if Syncable(k) {
			out = append(out, k)
		}
	}
	return out
}

// Envelope returns the sync envelope of a resource key (zero if never written).
func (s *Store) Envelope(ctx context.Context, key string) domain.SyncEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var env domain.SyncEnvelope
	s.loadLocked(ctx, EnvelopeKey(key), &env)
	return env
}

// Snapshot returns the raw record and its envelope read atomically.
func (s *Store) Snapshot(ctx context.Context, key string) ([]byte, domain.SyncEnvelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var env domain.SyncEnvelope
	s.loadLocked(ctx, EnvelopeKey(key), &env)
	raw, ok := s.getLocked(ctx, key)
	return raw, env, ok
}

// CommitSync writes a reconciled record and its envelope together, but only if
// no local write happened since the snapshot at expectedVersion was taken.
// A nil payload leaves the record untouched and only advances the envelope.
func (s *Store) CommitSync(ctx context.Context, key string, expectedVersion int64, payload []byte, env domain.SyncEnvelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current domain.SyncEnvelope
	s.loadLocked(ctx, EnvelopeKey(key), &current)
	if current.LocalVersion != expectedVersion {
		return false
	}
	if env.LastSyncedVersion > env.LocalVersion {
		env.LastSyncedVersion = env.LocalVersion
	}

	envRaw, err := json.Marshal(env)
	if err != nil {
		log.Printf("[store] encode envelope %s: %v", key, err)
		return false
	}
	if payload != nil {
		s.putLocked(ctx, key, payload)
	}
	s.putLocked(ctx, EnvelopeKey(key), envRaw)
	return true
}

func (s *Store) loadLocked(ctx context.Context, key string, v any) bool {
	raw, ok := s.getLocked(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.degradeLocked("decode "+key, err)
		return false
	}
	return true
}

func (s *Store) getLocked(ctx context.Context, key string) ([]byte, bool) {
	if raw, err := s.fallback.Get(ctx, key); err == nil {
		return raw, true
	}
	raw, err := s.primary.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.degradeLocked("get "+key, err)
		}
		return nil, false
	}
	return raw, true
}

func (s *Store) saveLocked(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.putLocked(ctx, key, raw)

	if !Syncable(key) {
		return nil
	}
	var env domain.SyncEnvelope
	s.loadLocked(ctx, EnvelopeKey(key), &env)
	env.LocalVersion++
	env.UpdatedAt = s.now()
	envRaw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", key, err)
	}
	s.putLocked(ctx, EnvelopeKey(key), envRaw)
	return nil
}

func (s *Store) putLocked(ctx context.Context, key string, raw []byte) {
	if !s.degraded {
		err := s.primary.Put(ctx, key, raw)
		if err == nil {
			return
		}
		s.degradeLocked("put "+key, err)
	}
	_ = s.fallback.Put(ctx, key, raw)
}

func (s *Store) degradeLocked(op string, err error) {
	wrapped := fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
	log.Printf("[store] %v; continuing in memory, progress may not be saved", wrapped)
	s.lastErr = wrapped
	if s.degraded {
		return
	}
	s.degraded = true
	s.events.Publish(events.Event{Kind: events.StorageDegraded, Payload: wrapped.Error()})
}
