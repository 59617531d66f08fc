package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/infra/memory"
	"eduquest-progress/internal/progress"
	"eduquest-progress/internal/store"
)

type memRemote struct {
	mu      sync.Mutex
	data    map[string]Snapshot
	fail    error
	fetches int
	pushes  int
	gate    chan struct{}
	entered chan struct{}
}

func newMemRemote() *memRemote {
	return &memRemote{data: make(map[string]Snapshot)}
}

func (m *memRemote) Fetch(_ context.Context, key string) (Snapshot, bool, error) {
	m.mu.Lock()
	m.fetches++
	gate, entered := m.gate, m.entered
	m.gate, m.entered = nil, nil
	m.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Snapshot{}, false, m.fail
	}
	s, ok := m.data[key]
	return s, ok, nil
}

func (m *memRemote) Push(_ context.Context, key string, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.pushes++
	m.data[key] = s
	return nil
}

type flagConn struct{ online atomic.Bool }

func (c *flagConn) Online() bool { return c.online.Load() }

func onlineConn() *flagConn {
	c := &flagConn{}
	c.online.Store(true)
	return c
}

var syncNow = time.Date(2025, 1, 11, 12, 0, 0, 0, time.UTC)

func newStore() *store.Store {
	return store.NewWithClock(memory.NewBackend(), nil, func() time.Time { return syncNow })
}

func TestSyncAllOfflineLeavesState(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	_ = st.Save(ctx, store.LessonKey("1"), domain.LessonProgress{LessonID: "1", CompletedSegments: 2})
	before, envBefore, _ := st.Snapshot(ctx, store.LessonKey("1"))

	conn := &flagConn{}
	remote := newMemRemote()
	r := NewWithClock(st, remote, conn, nil, func() time.Time { return syncNow })

	if err := r.SyncAll(ctx); !errors.Is(err, domain.ErrOffline) {
		t.Fatalf("expected offline, got %v", err)
	}
	after, envAfter, _ := st.Snapshot(ctx, store.LessonKey("1"))
	if string(before) != string(after) || envAfter.LastSyncedVersion != envBefore.LastSyncedVersion {
		t.Fatalf("offline sync changed local state")
	}
	if remote.fetches != 0 {
		t.Fatalf("offline sync reached the remote")
	}
	if r.Status().Status != StatusOffline {
		t.Fatalf("expected offline status, got %+v", r.Status())
	}
}

func TestSyncAllMergesAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	key := store.LessonKey("1")
	_ = st.Save(ctx, key, domain.LessonProgress{LessonID: "1", TotalSegments: 5, CurrentSegment: 2, CompletedSegments: 1})
	_ = st.Save(ctx, store.KeyActivityLog, domain.ActivityLog{"2025-01-11": {Date: "2025-01-11", Studied: true, MinutesStudied: 5}})

	remote := newMemRemote()
	remoteLesson, _ := json.Marshal(domain.LessonProgress{LessonID: "1", TotalSegments: 5, CurrentSegment: 4, CompletedSegments: 4, IsBookmarked: true})
	remote.data[key] = Snapshot{Version: 3, UpdatedAt: syncNow.Add(-time.Hour), Payload: remoteLesson}

	bus := events.NewBus()
	done, cancel := bus.Subscribe(events.SyncCompleted)
	defer cancel()

	r := NewWithClock(st, remote, onlineConn(), bus, func() time.Time { return syncNow })
	if err := r.SyncAll(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var got domain.LessonProgress
	st.Load(ctx, key, &got)
	if got.CompletedSegments != 4 || got.CurrentSegment != 4 || !got.IsBookmarked {
		t.Fatalf("expected remote progress merged, got %+v", got)
	}
	env := st.Envelope(ctx, key)
	if env.LocalVersion != 3 || env.LastSyncedVersion != 3 || env.Dirty() || env.LastSyncedAt == nil {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if _, ok := remote.data[store.KeyActivityLog]; !ok {
		t.Fatalf("expected activity log pushed")
	}

	status := r.Status()
	if status.Status != StatusComplete || status.LastSyncedAt == nil || !status.LastSyncedAt.Equal(syncNow) {
		t.Fatalf("unexpected status %+v", status)
	}
	select {
	case <-done:
	default:
		t.Fatalf("expected sync completed event")
	}

	pushes := remote.pushes
	if err := r.SyncAll(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if remote.pushes != pushes {
		t.Fatalf("expected clean records not pushed again, pushes %d -> %d", pushes, remote.pushes)
	}
}

func TestSyncFailureLeavesEnvelopes(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	key := store.LessonKey("1")
	_ = st.Save(ctx, key, domain.LessonProgress{LessonID: "1", CompletedSegments: 2})
	envBefore := st.Envelope(ctx, key)

	remote := newMemRemote()
	remote.fail = errors.New("connection reset")
	bus := events.NewBus()
	failed, cancel := bus.Subscribe(events.SyncFailed)
	defer cancel()

	r := NewWithClock(st, remote, onlineConn(), bus, func() time.Time { return syncNow })
	if err := r.SyncAll(ctx); err == nil {
		t.Fatalf("expected sync error")
	}
	if env := st.Envelope(ctx, key); env != envBefore {
		t.Fatalf("envelope changed on failure: %+v -> %+v", envBefore, env)
	}
	if s := r.Status(); s.Status != StatusError || s.LastError == "" || s.LastSyncedAt != nil {
		t.Fatalf("unexpected status %+v", s)
	}
	select {
	case <-failed:
	default:
		t.Fatalf("expected sync failed event")
	}

	remote.fail = nil
	if err := r.SyncAll(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if env := st.Envelope(ctx, key); env.Dirty() {
		t.Fatalf("expected retry to mark synced, got %+v", env)
	}
}

func TestSyncKeyCoalescesOverlappingTriggers(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	key := store.KeyActivityLog
	_ = st.Save(ctx, key, domain.ActivityLog{})

	remote := newMemRemote()
	remote.gate = make(chan struct{})
	remote.entered = make(chan struct{})
	gate, entered := remote.gate, remote.entered
	r := NewWithClock(st, remote, onlineConn(), nil, func() time.Time { return syncNow })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.SyncKey(ctx, key)
	}()
	<-entered

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.SyncKey(ctx, key)
		}()
	}
	deadline := time.Now().Add(time.Second)
	for {
		r.mu.Lock()
		pending := r.pending[key]
		r.mu.Unlock()
		if pending || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if remote.fetches != 2 {
		t.Fatalf("expected one run plus one coalesced follow-up, got %d fetches", remote.fetches)
	}
}

func TestRunSyncsWhenConnectivityReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newStore()
	_ = st.Save(ctx, store.KeyGoals, []domain.Goal{{ID: "g1", Title: "Goal"}})
	conn := &flagConn{}
	bus := events.NewBus()
	done, unsubscribe := bus.Subscribe(events.SyncCompleted)
	defer unsubscribe()

	remote := newMemRemote()
	r := NewWithClock(st, remote, conn, bus, func() time.Time { return syncNow })
	go r.Run(ctx, bus)
	time.Sleep(10 * time.Millisecond)

	conn.online.Store(true)
	bus.Publish(events.Event{Kind: events.ConnectivityChanged, Payload: true})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected sync after reconnect")
	}
	if _, ok := remote.data[store.KeyGoals]; !ok {
		t.Fatalf("expected goals pushed")
	}
}

func TestHTTPRemote(t *testing.T) {
	var mu sync.Mutex
	data := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := strings.TrimPrefix(req.URL.Path, "/api/sync/")
		mu.Lock()
		defer mu.Unlock()
		switch req.Method {
		case http.MethodGet:
			if key == "broken" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			body, ok := data[key]
			if !ok {
				http.NotFound(w, req)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)
		case http.MethodPut:
			var s Snapshot
			if err := json.NewDecoder(req.Body).Decode(&s); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data[key], _ = json.Marshal(s)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	remote := NewHTTPRemote(srv.URL+"/", time.Second)

	if _, found, err := remote.Fetch(ctx, "activity-log"); err != nil || found {
		t.Fatalf("expected missing remote copy, found=%v err=%v", found, err)
	}
	want := Snapshot{Version: 7, UpdatedAt: syncNow, Payload: json.RawMessage(`{"2025-01-11":{"date":"2025-01-11","studied":true,"minutesStudied":3}}`)}
	if err := remote.Push(ctx, "activity-log", want); err != nil {
		t.Fatalf("push: %v", err)
	}
	got, found, err := remote.Fetch(ctx, "activity-log")
	if err != nil || !found || got.Version != 7 || !got.UpdatedAt.Equal(syncNow) || !sameJSON(got.Payload, want.Payload) {
		t.Fatalf("unexpected fetch %+v found=%v err=%v", got, found, err)
	}

	if _, _, err := remote.Fetch(ctx, "broken"); !errors.Is(err, domain.ErrSync) {
		t.Fatalf("expected sync error, got %v", err)
	}
}

func TestSyncAllPullsLearnerRecordsMissingLocally(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	_ = st.Save(ctx, store.LessonKey("1"), domain.LessonProgress{LessonID: "1", TotalSegments: 3, CurrentSegment: 1})

	remote := newMemRemote()
	activity, _ := json.Marshal(domain.ActivityLog{"2025-01-10": {Date: "2025-01-10", Studied: true, MinutesStudied: 20}})
	remote.data[store.KeyActivityLog] = Snapshot{Version: 4, UpdatedAt: syncNow.Add(-time.Hour), Payload: activity}
	earnedAt := syncNow.Add(-48 * time.Hour)
	achievements, _ := json.Marshal([]domain.Achievement{{ID: "first-quiz", Earned: true, EarnedAt: &earnedAt}})
	remote.data[store.KeyAchievements] = Snapshot{Version: 2, UpdatedAt: earnedAt, Payload: achievements}

	r := NewWithClock(st, remote, onlineConn(), nil, func() time.Time { return syncNow })
	if err := r.SyncAll(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	var days domain.ActivityLog
	if !st.Load(ctx, store.KeyActivityLog, &days) || !days["2025-01-10"].Studied {
		t.Fatalf("expected remote activity pulled, got %+v", days)
	}
	var earned []domain.Achievement
	if !st.Load(ctx, store.KeyAchievements, &earned) || len(earned) != 1 || earned[0].ID != "first-quiz" {
		t.Fatalf("expected remote achievements pulled, got %+v", earned)
	}
	if env := st.Envelope(ctx, store.KeyActivityLog); env.LocalVersion != 4 || env.Dirty() {
		t.Fatalf("unexpected activity envelope %+v", env)
	}
	if _, ok := remote.data[store.KeyGoals]; ok {
		t.Fatalf("empty goals must not be pushed")
	}
}

func TestRunIgnoresBandwidthChangesWhileOnline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newStore()
	_ = st.Save(ctx, store.KeyGoals, []domain.Goal{{ID: "g1", Title: "Goal"}})
	bus := events.NewBus()
	started, unsubscribe := bus.Subscribe(events.SyncStarted)
	defer unsubscribe()

	r := NewWithClock(st, newMemRemote(), onlineConn(), bus, func() time.Time { return syncNow })
	go r.Run(ctx, bus)
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 3; i++ {
		bus.Publish(events.Event{Kind: events.ConnectivityChanged})
	}
	select {
	case <-started:
		t.Fatalf("expected no sync without an offline to online transition")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOnSyncedReevaluatesMergedHistory(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	key := store.QuizResultsKey("q")
	_ = st.Save(ctx, key, domain.QuizAttempts{QuizID: "q", Attempts: []domain.QuizResult{
		{AttemptID: "a", Score: 1, TotalQuestions: 2, SubmittedAt: syncNow.Add(-2 * time.Hour)},
	}})

	remote := newMemRemote()
	other, _ := json.Marshal(domain.QuizAttempts{QuizID: "q", Attempts: []domain.QuizResult{
		{AttemptID: "b", Score: 2, TotalQuestions: 2, PointsEarned: 25, SubmittedAt: syncNow.Add(-time.Hour)},
	}})
	remote.data[key] = Snapshot{Version: 1, UpdatedAt: syncNow.Add(-time.Hour), Payload: other}

	prog := progress.NewServiceWithClock(st, nil, func() time.Time { return syncNow })
	r := NewWithClock(st, remote, onlineConn(), nil, func() time.Time { return syncNow })
	r.OnSynced(func(ctx context.Context) {
		if _, err := prog.EvaluateAchievements(ctx); err != nil {
			t.Errorf("evaluate: %v", err)
		}
	})
	if err := r.SyncAll(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	perfect := false
	for _, a := range prog.Achievements(ctx) {
		if a.ID == "perfect-score" && a.Earned {
			perfect = true
		}
	}
	if !perfect {
		t.Fatalf("expected perfect-score earned from the merged remote attempt")
	}
}
