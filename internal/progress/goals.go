package progress

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/store"
)

// GoalView is a stored goal with its derived progress.
type GoalView struct {
	domain.Goal
	CurrentValue    int  `json:"currentValue"`
	ProgressPercent int  `json:"progress"`
	DaysLeft        int  `json:"daysLeft"`
	Overdue         bool `json:"overdue"`
}

// GoalDraft is the input of AddGoal.
type GoalDraft struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Category    domain.GoalCategory `json:"category"`
	TargetValue int                 `json:"targetValue"`
	Deadline    string              `json:"deadline"`
	Priority    string              `json:"priority"`
}

func (d GoalDraft) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidGoal)
	}
	if d.TargetValue <= 0 {
		return fmt.Errorf("%w: target must be positive", domain.ErrInvalidGoal)
	}
	switch d.Category {
	case domain.GoalAcademic, domain.GoalConsistency, domain.GoalAssessment, domain.GoalSkill:
	default:
		return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidGoal, d.Category)
	}
	if _, err := time.Parse(domain.DayLayout, d.Deadline); err != nil {
		return fmt.Errorf("%w: deadline must be YYYY-MM-DD", domain.ErrInvalidGoal)
	}
	return nil
}

// AddGoal validates and stores a new active goal.
func (s *Service) AddGoal(ctx context.Context, draft GoalDraft) (domain.Goal, error) {
	if err := draft.validate(); err != nil {
		return domain.Goal{}, err
	}
	priority := draft.Priority
	if priority == "" {
		priority = "medium"
	}
	goal := domain.Goal{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(draft.Title),
		Description: draft.Description,
		Category:    draft.Category,
		TargetValue: draft.TargetValue,
		Deadline:    draft.Deadline,
		Priority:    priority,
		Status:      domain.GoalActive,
		CreatedAt:   s.now(),
	}

	var goals []domain.Goal
	err := s.store.Update(ctx, store.KeyGoals, &goals, func(bool) error {
		goals = append(goals, goal)
		return nil
	})
	if err != nil {
		return domain.Goal{}, err
	}
	return goal, nil
}

// CompleteGoal marks a goal completed. Completing twice is a no-op.
func (s *Service) CompleteGoal(ctx context.Context, id string) error {
	return s.mutateGoal(ctx, id, func(g *domain.Goal) bool {
		if g.Status == domain.GoalCompleted {
			return false
		}
		now := s.now()
		g.Status = domain.GoalCompleted
		g.CompletedAt = &now
		return true
	})
}

// DeleteGoal tombstones a goal so the deletion survives reconciliation.
func (s *Service) DeleteGoal(ctx context.Context, id string) error {
	return s.mutateGoal(ctx, id, func(g *domain.Goal) bool {
		now := s.now()
		g.DeletedAt = &now
		return true
	})
}

func (s *Service) mutateGoal(ctx context.Context, id string, fn func(*domain.Goal) bool) error {
	var goals []domain.Goal
	return s.store.Update(ctx, store.KeyGoals, &goals, func(bool) error {
		for i := range goals {
			if goals[i].ID != id || goals[i].DeletedAt != nil {
				continue
			}
			if !fn(&goals[i]) {
				return store.ErrNoChange
			}
			return nil
		}
		return domain.ErrGoalNotFound
	})
}

// Goals returns every live goal with derived progress.
func (s *Service) Goals(ctx context.Context) []GoalView {
	return s.goalViews(ctx, s.Metrics(ctx))
}

func (s *Service) goalViews(ctx context.Context, m Metrics) []GoalView {
	var goals []domain.Goal
	s.store.Load(ctx, store.KeyGoals, &goals)

	today := s.now()
	out := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		if g.DeletedAt != nil {
			continue
		}
		out = append(out, GoalProgress(g, m, today))
	}
	return out
}

// GoalProgress derives the current value, percentage and days left of a goal.
// Completed goals report their target as current value.
func GoalProgress(g domain.Goal, m Metrics, today time.Time) GoalView {
	v := GoalView{Goal: g}
	if g.Status == domain.GoalCompleted {
		v.CurrentValue = g.TargetValue
	} else {
		v.CurrentValue = metricFor(g.Category, m)
	}
	if g.TargetValue > 0 {
		v.ProgressPercent = int(math.Min(float64(v.CurrentValue)/float64(g.TargetValue)*100, 100))
	}

	deadline, err := time.Parse(domain.DayLayout, g.Deadline)
	if err == nil {
		day, _ := time.Parse(domain.DayLayout, domain.DayKey(today))
		v.DaysLeft = int(math.Ceil(deadline.Sub(day).Hours() / 24))
		v.Overdue = v.DaysLeft <= 0 && g.Status != domain.GoalCompleted
	}
	return v
}

func metricFor(c domain.GoalCategory, m Metrics) int {
	switch c {
	case domain.GoalAcademic:
		return m.BestScorePercent
	case domain.GoalConsistency:
		return m.CurrentStreak
	case domain.GoalAssessment:
		return m.QuizzesCompleted
	case domain.GoalSkill:
		return m.LessonsCompleted
	}
	return 0
}
