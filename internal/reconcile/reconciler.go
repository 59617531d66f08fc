// Package reconcile merges locally stored progress with the remote copy when
// connectivity is available.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/store"
)

// Status is shown by the "last synced" indicator.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusSyncing  Status = "syncing"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	StatusOffline  Status = "offline"
)

// Connectivity reports whether the remote may be reachable.
type Connectivity interface {
	Online() bool
}

// StatusView is the observable sync state.
type StatusView struct {
	Status       Status     `json:"syncStatus"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
}

// Reconciler drains syncable store records against a Remote. Reconciliations
// of one key never overlap; triggers arriving while one is in flight are
// folded into a single follow-up run.
type Reconciler struct {
	store  *store.Store
	remote Remote
	conn   Connectivity
	events events.Publisher
	now    func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	inflight  map[string]bool
	pending   map[string]bool
	status    Status
	lastSync  *time.Time
	lastErr   error
	afterSync func(ctx context.Context)
}

func New(st *store.Store, remote Remote, conn Connectivity, pub events.Publisher) *Reconciler {
	return NewWithClock(st, remote, conn, pub, time.Now)
}

func NewWithClock(st *store.Store, remote Remote, conn Connectivity, pub events.Publisher, now func() time.Time) *Reconciler {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Reconciler{
		store:    st,
		remote:   remote,
		conn:     conn,
		events:   pub,
		now:      now,
		inflight: make(map[string]bool),
		pending:  make(map[string]bool),
		status:   StatusIdle,
	}
}

func (r *Reconciler) Status() StatusView {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := StatusView{Status: r.status, LastSyncedAt: r.lastSync}
	if r.lastErr != nil {
		v.LastError = r.lastErr.Error()
	}
	return v
}

func (r *Reconciler) online() bool {
	return r.remote != nil && (r.conn == nil || r.conn.Online())
}

// SyncAll reconciles every syncable key. Failures leave local state
// authoritative and are retried on the next trigger.
func (r *Reconciler) SyncAll(ctx context.Context) error {
	if !r.online() {
		r.setStatus(StatusOffline, nil)
		return domain.ErrOffline
	}

	r.setStatus(StatusSyncing, nil)
	r.events.Publish(events.Event{Kind: events.SyncStarted})

	var firstErr error
	keys := r.syncKeys(ctx)
	for _, key := range keys {
		if err := r.SyncKey(ctx, key); err != nil {
			log.Printf("[sync] %s: %v", key, err)
			if firstErr == nil {
				firstErr = err
			}
			if errors.Is(err, domain.ErrOffline) || ctx.Err() != nil {
				break
			}
		}
	}

	if firstErr != nil {
		r.setStatus(StatusError, firstErr)
		r.events.Publish(events.Event{Kind: events.SyncFailed, Payload: firstErr.Error()})
		return firstErr
	}

	now := r.now()
	r.mu.Lock()
	r.lastSync = &now
	r.mu.Unlock()
	r.setStatus(StatusComplete, nil)
	log.Printf("[sync] reconciled %d records", len(keys))
	r.events.Publish(events.Event{Kind: events.SyncCompleted, Payload: len(keys)})

	r.mu.Lock()
	after := r.afterSync
	r.mu.Unlock()
	if after != nil {
		after(ctx)
	}
	return nil
}

// OnSynced registers fn to run after every successful SyncAll, e.g. to
// re-evaluate achievements over merged history.
func (r *Reconciler) OnSynced(fn func(ctx context.Context)) {
	r.mu.Lock()
	r.afterSync = fn
	r.mu.Unlock()
}

// syncKeys is every stored syncable key plus the learner-wide records, which
// may exist only on the remote.
func (r *Reconciler) syncKeys(ctx context.Context) []string {
	keys := r.store.SyncableKeys(ctx)
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	for _, k := range []string{store.KeyActivityLog, store.KeyAchievements, store.KeyGoals} {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SyncKey reconciles one record.
func (r *Reconciler) SyncKey(ctx context.Context, key string) error {
	for {
		r.mu.Lock()
		if r.inflight[key] {
			r.pending[key] = true
		}
		r.mu.Unlock()

		_, err, _ := r.group.Do(key, func() (any, error) {
			r.mu.Lock()
			r.inflight[key] = true
			r.mu.Unlock()
			defer func() {
				r.mu.Lock()
				delete(r.inflight, key)
				r.mu.Unlock()
			}()
			return nil, r.reconcileKey(ctx, key)
		})

		r.mu.Lock()
		again := r.pending[key]
		delete(r.pending, key)
		r.mu.Unlock()
		if err != nil || !again {
			return err
		}
	}
}

func (r *Reconciler) reconcileKey(ctx context.Context, key string) error {
	if !r.online() {
		return domain.ErrOffline
	}

	raw, env, _ := r.store.Snapshot(ctx, key)
	local := Snapshot{Version: env.LocalVersion, UpdatedAt: env.UpdatedAt, Payload: raw}

	remote, found, err := r.remote.Fetch(ctx, key)
	if err != nil {
		return err
	}
	var remotePtr *Snapshot
	if found {
		remotePtr = &remote
	} else {
		remotePtr = &Snapshot{}
	}

	merged, err := Reconcile(key, local, remotePtr)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSync, err)
	}
	if merged.empty() {
		return nil
	}

	if env.Dirty() || !found || !sameJSON(merged.Payload, remote.Payload) || merged.Version != remote.Version {
		push := merged
		push.UpdatedAt = r.now()
		if err := r.remote.Push(ctx, key, push); err != nil {
			return err
		}
	}

	now := r.now()
	next := domain.SyncEnvelope{
		LocalVersion:      merged.Version,
		LastSyncedVersion: merged.Version,
		LastSyncedAt:      &now,
		UpdatedAt:         env.UpdatedAt,
	}
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = now
	}
	var payload []byte
	if !sameJSON(merged.Payload, raw) {
		payload = merged.Payload
	}
	if !r.store.CommitSync(ctx, key, env.LocalVersion, payload, next) {
		// A local write landed mid-sync; run again with the newer copy.
		r.mu.Lock()
		r.pending[key] = true
		r.mu.Unlock()
	}
	return nil
}

func (r *Reconciler) setStatus(s Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
	r.lastErr = err
}

// Run triggers SyncAll whenever connectivity is regained, until ctx is done.
func (r *Reconciler) Run(ctx context.Context, sub events.Subscriber) {
	ch, cancel := sub.Subscribe(events.ConnectivityChanged)
	defer cancel()
	wasOnline := r.online()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			online := r.online()
			reconnected := online && !wasOnline
			wasOnline = online
			if !online {
				r.setStatus(StatusOffline, nil)
				continue
			}
			// Bandwidth-only changes arrive while already online.
			if !reconnected {
				continue
			}
			if err := r.SyncAll(ctx); err != nil {
				log.Printf("[sync] reconnect sync: %v", err)
			}
		}
	}
}

func sameJSON(a, b []byte) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
