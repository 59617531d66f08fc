// Package progress derives streaks, metrics, achievements and goals from the
// learner records held in the store.
package progress

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/store"
)

// Service owns the activity log, earned achievements and goals.
type Service struct {
	store  *store.Store
	rules  []Rule
	events events.Publisher
	now    func() time.Time
}

func NewService(st *store.Store, pub events.Publisher) *Service {
	return NewServiceWithClock(st, pub, time.Now)
}

// NewServiceWithClock is used by tests to pin "today".
func NewServiceWithClock(st *store.Store, pub events.Publisher, now func() time.Time) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{store: st, rules: Catalog, events: pub, now: now}
}

// WithRules replaces the achievement catalog.
func (s *Service) WithRules(rules []Rule) *Service {
	s.rules = rules
	return s
}

// RecordActivity marks the day of at as studied and adds the minutes.
func (s *Service) RecordActivity(ctx context.Context, at time.Time, minutes int) error {
	var activity domain.ActivityLog
	return s.store.Update(ctx, store.KeyActivityLog, &activity, func(bool) error {
		activity = RecordActivity(activity, at, minutes)
		return nil
	})
}

// MinutesFor converts a duration in seconds to whole study minutes, rounding up.
func MinutesFor(seconds int) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(float64(seconds) / 60))
}

func (s *Service) Activity(ctx context.Context) domain.ActivityLog {
	var activity domain.ActivityLog
	if !s.store.Load(ctx, store.KeyActivityLog, &activity) || activity == nil {
		return domain.ActivityLog{}
	}
	return activity
}

func (s *Service) Streak(ctx context.Context) domain.StreakSummary {
	return ComputeStreak(s.Activity(ctx), s.now())
}

// Metrics derives every counter from the stored records.
func (s *Service) Metrics(ctx context.Context) Metrics {
	var m Metrics

	for _, key := range s.store.Keys(ctx, store.PrefixQuizResults) {
		var history domain.QuizAttempts
		if !s.store.Load(ctx, key, &history) {
			continue
		}
		for _, r := range history.Attempts {
			m.QuizzesCompleted++
			m.QuizPoints += r.PointsEarned
			if r.Perfect() {
				m.PerfectScores++
			}
			if hasBadge(r, BadgeSpeedSolver) {
				m.SpeedSolves++
			}
			if r.TotalQuestions > 0 {
				if pct := r.Score * 100 / r.TotalQuestions; pct > m.BestScorePercent {
					m.BestScorePercent = pct
				}
			}
		}
	}

	for _, key := range s.store.Keys(ctx, store.PrefixLesson) {
		var lesson domain.LessonProgress
		if s.store.Load(ctx, key, &lesson) && lesson.Completed() {
			m.LessonsCompleted++
		}
	}

	activity := s.Activity(ctx)
	for _, day := range activity {
		m.StudyMinutes += day.MinutesStudied
	}
	streak := ComputeStreak(activity, s.now())
	m.CurrentStreak = streak.Current
	m.LongestStreak = streak.Longest
	return m
}

// EvaluateAchievements checks every rule against the current metrics and
// persists newly earned achievements. The returned list carries IsNew on the
// entries unlocked by this call only.
func (s *Service) EvaluateAchievements(ctx context.Context) ([]domain.Achievement, error) {
	m := s.Metrics(ctx)
	now := s.now()

	var stored []domain.Achievement
	var evaluated []domain.Achievement
	err := s.store.Update(ctx, store.KeyAchievements, &stored, func(bool) error {
		evaluated = Evaluate(s.rules, m, stored, now)
		if len(Unlocked(evaluated)) == 0 {
			return store.ErrNoChange
		}
		stored = earnedOnly(evaluated)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate achievements: %w", err)
	}

	for _, a := range Unlocked(evaluated) {
		log.Printf("[progress] achievement unlocked: %s", a.ID)
		s.events.Publish(events.Event{Kind: events.AchievementUnlocked, Key: a.ID, Payload: a})
	}
	return evaluated, nil
}

// Achievements returns the full catalog with earned state, without IsNew.
func (s *Service) Achievements(ctx context.Context) []domain.Achievement {
	var stored []domain.Achievement
	s.store.Load(ctx, store.KeyAchievements, &stored)

	out := make([]domain.Achievement, 0, len(s.rules))
	earned := make(map[string]domain.Achievement, len(stored))
	for _, a := range stored {
		earned[a.ID] = a
	}
	for _, rule := range s.rules {
		a := rule.Achievement
		if e, ok := earned[a.ID]; ok && e.Earned {
			a.Earned = true
			a.EarnedAt = e.EarnedAt
			delete(earned, a.ID)
		}
		out = append(out, a)
	}
	for _, a := range stored {
		if _, ok := earned[a.ID]; ok && a.Earned {
			a.IsNew = false
			out = append(out, a)
		}
	}
	return out
}

// Summary is the dashboard view of accumulated progress.
type Summary struct {
	Metrics        Metrics              `json:"metrics"`
	Streak         domain.StreakSummary `json:"streak"`
	TotalPoints    int                  `json:"totalPoints"`
	EarnedCount    int                  `json:"earnedCount"`
	Achievements   []domain.Achievement `json:"achievements"`
	Goals          []GoalView           `json:"goals"`
	RecentActivity []domain.ActivityDay `json:"recentActivity"`
}

func (s *Service) Summary(ctx context.Context) Summary {
	m := s.Metrics(ctx)
	achievements := s.Achievements(ctx)

	sum := Summary{
		Metrics:      m,
		Streak:       domain.StreakSummary{Current: m.CurrentStreak, Longest: m.LongestStreak},
		TotalPoints:  m.QuizPoints,
		Achievements: achievements,
		Goals:        s.goalViews(ctx, m),
	}
	for _, a := range achievements {
		if a.Earned {
			sum.EarnedCount++
			sum.TotalPoints += a.Points
		}
	}

	activity := s.Activity(ctx)
	today := s.now()
	for i := 6; i >= 0; i-- {
		key := domain.DayKey(today.AddDate(0, 0, -i))
		day := activity[key]
		day.Date = key
		sum.RecentActivity = append(sum.RecentActivity, day)
	}
	return sum
}

// BadgeSpeedSolver and BadgePerfectScore are the per-attempt badges.
const (
	BadgePerfectScore = "Perfect Score"
	BadgeSpeedSolver  = "Speed Solver"
)

// SpeedSolverThreshold is the minimum remaining time, in seconds, for the
// speed badge.
const SpeedSolverThreshold = 900

// AttemptBadges returns the badges a single submission earns.
func AttemptBadges(r domain.QuizResult) []string {
	badges := []string{}
	if r.Perfect() {
		badges = append(badges, BadgePerfectScore)
	}
	if r.TimeRemainingSeconds > SpeedSolverThreshold {
		badges = append(badges, BadgeSpeedSolver)
	}
	return badges
}

func hasBadge(r domain.QuizResult, badge string) bool {
	for _, b := range r.Badges {
		if b == badge {
			return true
		}
	}
	return false
}
