package app

import (
	"context"
	"log"
	"sync"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/store"
)

// MediaCompleteThreshold is the playback percentage that completes a media segment.
const MediaCompleteThreshold = 90

// LessonTracker tracks segment navigation and completion for one lesson.
// Every operation re-reads the stored record and replaces it whole, so a
// concurrent reconciliation is never overwritten with a stale copy.
type LessonTracker struct {
	deps     Deps
	lessonID string

	mu       sync.Mutex
	progress domain.LessonProgress
}

// OpenLesson loads or creates the record of a lesson and stamps lastAccessed.
func OpenLesson(ctx context.Context, lessonID string, totalSegments int, deps Deps) (*LessonTracker, error) {
	t := &LessonTracker{deps: deps.withDefaults(), lessonID: lessonID}
	err := t.mutate(ctx, func(p *domain.LessonProgress) error {
		if totalSegments > 0 {
			p.TotalSegments = totalSegments
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Progress returns a copy of the last written record.
func (t *LessonTracker) Progress() domain.LessonProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// GoToSegment jumps to segment n, which must not lie past the completion frontier.
func (t *LessonTracker) GoToSegment(ctx context.Context, n int) error {
	return t.mutate(ctx, func(p *domain.LessonProgress) error {
		if n < 1 || (p.TotalSegments > 0 && n > p.TotalSegments) {
			return t.reject("goto", domain.ErrSegmentOutOfRange)
		}
		if n > p.CompletedSegments+1 {
			return t.reject("goto", domain.ErrSegmentLocked)
		}
		p.CurrentSegment = n
		return nil
	})
}

// Advance completes the current segment and moves forward unless already on
// the last one.
func (t *LessonTracker) Advance(ctx context.Context) error {
	return t.mutate(ctx, func(p *domain.LessonProgress) error {
		completeCurrent(p)
		if p.CurrentSegment < p.TotalSegments {
			p.CurrentSegment++
		}
		return nil
	})
}

// Previous moves back one segment without touching completion.
func (t *LessonTracker) Previous(ctx context.Context) error {
	return t.mutate(ctx, func(p *domain.LessonProgress) error {
		if p.CurrentSegment <= 1 {
			return store.ErrNoChange
		}
		p.CurrentSegment--
		return nil
	})
}

// MarkInteractiveComplete completes the current segment once all its
// interactions are answered.
func (t *LessonTracker) MarkInteractiveComplete(ctx context.Context) error {
	return t.mutate(ctx, func(p *domain.LessonProgress) error {
		completeCurrent(p)
		return nil
	})
}

// OnMediaProgress completes the current segment once playback reaches the threshold.
func (t *LessonTracker) OnMediaProgress(ctx context.Context, percent float64) error {
	if percent < MediaCompleteThreshold {
		return nil
	}
	return t.MarkInteractiveComplete(ctx)
}

func (t *LessonTracker) ToggleBookmark(ctx context.Context) error {
	return t.mutate(ctx, func(p *domain.LessonProgress) error {
		p.IsBookmarked = !p.IsBookmarked
		return nil
	})
}

// CanProceed reports whether the current segment is complete and another follows.
func (t *LessonTracker) CanProceed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.CompletedSegments >= t.progress.CurrentSegment && t.progress.CurrentSegment < t.progress.TotalSegments
}

func (t *LessonTracker) ProgressPercent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return progressPercent(t.progress)
}

func progressPercent(p domain.LessonProgress) int {
	if p.TotalSegments <= 0 {
		return 0
	}
	pct := p.CompletedSegments * 100 / p.TotalSegments
	if pct > 100 {
		pct = 100
	}
	return pct
}

func completeCurrent(p *domain.LessonProgress) {
	if p.CurrentSegment > p.CompletedSegments {
		p.CompletedSegments = p.CurrentSegment
	}
}

func (t *LessonTracker) mutate(ctx context.Context, fn func(*domain.LessonProgress) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.deps.Clock.Now()
	var p domain.LessonProgress
	wasCompleted := false
	err := t.deps.Store.Update(ctx, store.LessonKey(t.lessonID), &p, func(found bool) error {
		if !found {
			p = domain.LessonProgress{LessonID: t.lessonID, CurrentSegment: 1}
		}
		wasCompleted = p.Completed()
		if err := fn(&p); err != nil {
			return err
		}
		p.LastAccessed = now
		return nil
	})
	if err != nil {
		return err
	}
	t.progress = p

	t.deps.Events.Publish(events.Event{Kind: events.LessonUpdated, Key: t.lessonID, Payload: p})
	if !wasCompleted && p.Completed() {
		t.onCompleted(ctx)
	}
	return nil
}

func (t *LessonTracker) onCompleted(ctx context.Context) {
	log.Printf("[lesson] %s: completed", t.lessonID)
	if t.deps.Progress == nil {
		return
	}
	if err := t.deps.Progress.RecordActivity(ctx, t.deps.Clock.Now(), 0); err != nil {
		log.Printf("[lesson] %s: record activity: %v", t.lessonID, err)
	}
	if _, err := t.deps.Progress.EvaluateAchievements(ctx); err != nil {
		log.Printf("[lesson] %s: evaluate achievements: %v", t.lessonID, err)
	}
}

func (t *LessonTracker) reject(op string, err error) error {
	log.Printf("[lesson] %s: %s rejected: %v", t.lessonID, op, err)
	return err
}
