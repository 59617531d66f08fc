package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/store"
)

// Snapshot is one side of a reconciliation: a record and its version.
type Snapshot struct {
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Payload   json.RawMessage `json:"payload"`
}

func (s Snapshot) empty() bool {
	p := bytes.TrimSpace(s.Payload)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}

// newerThan reports whether s wins last-write-wins against o. Ties go to s.
func (s Snapshot) newerThan(o Snapshot) bool {
	if s.Version != o.Version {
		return s.Version > o.Version
	}
	return !s.UpdatedAt.Before(o.UpdatedAt)
}

// Reconcile merges the local and remote copies of the record at key. A nil
// remote means the remote is unreachable: the local snapshot is returned as is.
// Monotonic fields are merged by maximum or union so recorded progress never
// regresses; scalar fields follow the newer side.
func Reconcile(key string, local Snapshot, remote *Snapshot) (Snapshot, error) {
	if remote == nil {
		return local, nil
	}
	merged := Snapshot{Version: local.Version, UpdatedAt: local.UpdatedAt}
	if remote.Version > merged.Version {
		merged.Version = remote.Version
	}
	if remote.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
	}

	switch {
	case remote.empty():
		merged.Payload = local.Payload
		return merged, nil
	case local.empty():
		merged.Payload = remote.Payload
		return merged, nil
	}

	payload, err := mergePayload(key, local, *remote)
	if err != nil {
		return Snapshot{}, fmt.Errorf("merge %s: %w", key, err)
	}
	merged.Payload = payload
	return merged, nil
}

func mergePayload(key string, local, remote Snapshot) (json.RawMessage, error) {
	localWins := local.newerThan(remote)
	switch {
	case strings.HasPrefix(key, store.PrefixLesson):
		return mergeAs(local, remote, func(l, r domain.LessonProgress) domain.LessonProgress {
			return MergeLesson(l, r, localWins)
		})
	case strings.HasPrefix(key, store.PrefixQuizResults):
		return mergeAs(local, remote, MergeAttempts)
	case key == store.KeyActivityLog:
		return mergeAs(local, remote, MergeActivity)
	case key == store.KeyAchievements:
		return mergeAs(local, remote, MergeAchievements)
	case key == store.KeyGoals:
		return mergeAs(local, remote, func(l, r []domain.Goal) []domain.Goal {
			return MergeGoals(l, r, localWins)
		})
	}
	if localWins {
		return local.Payload, nil
	}
	return remote.Payload, nil
}

func mergeAs[T any](local, remote Snapshot, merge func(l, r T) T) (json.RawMessage, error) {
	var l, r T
	if err := json.Unmarshal(local.Payload, &l); err != nil {
		return nil, fmt.Errorf("decode local: %w", err)
	}
	if err := json.Unmarshal(remote.Payload, &r); err != nil {
		return nil, fmt.Errorf("decode remote: %w", err)
	}
	return json.Marshal(merge(l, r))
}

// MergeLesson keeps the furthest completion and takes navigation and bookmark
// state from the newer copy.
func MergeLesson(local, remote domain.LessonProgress, localWins bool) domain.LessonProgress {
	out := remote
	if localWins {
		out = local
	}
	out.CompletedSegments = max(local.CompletedSegments, remote.CompletedSegments)
	out.TotalSegments = max(local.TotalSegments, remote.TotalSegments)
	if local.LastAccessed.After(out.LastAccessed) {
		out.LastAccessed = local.LastAccessed
	}
	if remote.LastAccessed.After(out.LastAccessed) {
		out.LastAccessed = remote.LastAccessed
	}
	if out.CurrentSegment < 1 {
		out.CurrentSegment = 1
	}
	return out
}

// MergeActivity unions days. A day is studied if either copy studied it and
// keeps the larger minute count, so merging the same copy twice is stable.
func MergeActivity(local, remote domain.ActivityLog) domain.ActivityLog {
	out := make(domain.ActivityLog, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, r := range remote {
		l, ok := out[k]
		if !ok {
			out[k] = r
			continue
		}
		l.Date = k
		l.Studied = l.Studied || r.Studied
		l.MinutesStudied = max(l.MinutesStudied, r.MinutesStudied)
		out[k] = l
	}
	return out
}

// MergeAchievements unions earned achievements, keeping the earliest earnedAt.
func MergeAchievements(local, remote []domain.Achievement) []domain.Achievement {
	byID := make(map[string]domain.Achievement, len(local)+len(remote))
	for _, a := range append(append([]domain.Achievement{}, local...), remote...) {
		if !a.Earned {
			continue
		}
		a.IsNew = false
		prev, ok := byID[a.ID]
		if ok && prev.EarnedAt != nil && (a.EarnedAt == nil || prev.EarnedAt.Before(*a.EarnedAt)) {
			continue
		}
		byID[a.ID] = a
	}
	out := make([]domain.Achievement, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MergeAttempts unions attempt histories by attempt id.
func MergeAttempts(local, remote domain.QuizAttempts) domain.QuizAttempts {
	out := domain.QuizAttempts{QuizID: local.QuizID}
	if out.QuizID == "" {
		out.QuizID = remote.QuizID
	}
	seen := make(map[string]struct{}, len(local.Attempts)+len(remote.Attempts))
	for _, r := range append(append([]domain.QuizResult{}, local.Attempts...), remote.Attempts...) {
		if _, ok := seen[r.AttemptID]; ok {
			continue
		}
		seen[r.AttemptID] = struct{}{}
		out.Attempts = append(out.Attempts, r)
	}
	sort.SliceStable(out.Attempts, func(i, j int) bool {
		a, b := out.Attempts[i], out.Attempts[j]
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.AttemptID < b.AttemptID
	})
	return out
}

// MergeGoals unions goals by id. Completion and deletion are sticky; other
// fields follow the newer copy.
func MergeGoals(local, remote []domain.Goal, localWins bool) []domain.Goal {
	primary, secondary := remote, local
	if localWins {
		primary, secondary = local, remote
	}
	byID := make(map[string]domain.Goal, len(local)+len(remote))
	var order []string
	for _, g := range primary {
		if _, ok := byID[g.ID]; !ok {
			order = append(order, g.ID)
		}
		byID[g.ID] = g
	}
	for _, g := range secondary {
		cur, ok := byID[g.ID]
		if !ok {
			order = append(order, g.ID)
			byID[g.ID] = g
			continue
		}
		if g.Status == domain.GoalCompleted {
			cur.Status = domain.GoalCompleted
			cur.CompletedAt = earliest(cur.CompletedAt, g.CompletedAt)
		}
		cur.DeletedAt = earliest(cur.DeletedAt, g.DeletedAt)
		byID[g.ID] = cur
	}

	out := make([]domain.Goal, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	}
	return a
}
