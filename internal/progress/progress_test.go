package progress

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/infra/memory"
	"eduquest-progress/internal/store"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DayLayout, s)
	if err != nil {
		panic(err)
	}
	return t.Add(15 * time.Hour)
}

func logOf(studied ...string) domain.ActivityLog {
	l := domain.ActivityLog{}
	for _, d := range studied {
		l[d] = domain.ActivityDay{Date: d, Studied: true, MinutesStudied: 30}
	}
	return l
}

func TestComputeStreakTodayMissing(t *testing.T) {
	activity := logOf("2025-01-08", "2025-01-09", "2025-01-10")
	got := ComputeStreak(activity, day("2025-01-11"))
	if got.Current != 3 {
		t.Fatalf("expected current streak 3 with today unstudied, got %d", got.Current)
	}
	if got.Longest != 3 {
		t.Fatalf("expected longest 3, got %d", got.Longest)
	}

	activity = RecordActivity(activity, day("2025-01-11"), 20)
	if got := ComputeStreak(activity, day("2025-01-11")); got.Current != 4 {
		t.Fatalf("expected current streak 4, got %d", got.Current)
	}
}

func TestComputeStreakWeekBeforeToday(t *testing.T) {
	today := day("2025-03-20")
	activity := domain.ActivityLog{}
	for i := 1; i <= 7; i++ {
		activity = RecordActivity(activity, today.AddDate(0, 0, -i), 10)
	}
	for i := 11; i <= 14; i++ {
		activity = RecordActivity(activity, today.AddDate(0, 0, -i), 10)
	}
	got := ComputeStreak(activity, today)
	if got.Current != 7 || got.Longest != 7 {
		t.Fatalf("expected 7/7, got %+v", got)
	}

	for i := 15; i <= 24; i++ {
		activity = RecordActivity(activity, today.AddDate(0, 0, -i), 10)
	}
	got = ComputeStreak(activity, today)
	if got.Current != 7 || got.Longest != 14 {
		t.Fatalf("expected older run to win longest, got %+v", got)
	}
}

func TestComputeStreakBrokenByPastGap(t *testing.T) {
	activity := logOf("2025-01-01", "2025-01-02", "2025-01-03", "2025-01-04", "2025-01-09", "2025-01-10")
	got := ComputeStreak(activity, day("2025-01-11"))
	if got.Current != 2 || got.Longest != 4 {
		t.Fatalf("expected current 2 longest 4, got %+v", got)
	}

	if got := ComputeStreak(activity, day("2025-01-13")); got.Current != 0 {
		t.Fatalf("expected streak broken after a missed day, got %d", got.Current)
	}
}

func TestComputeStreakIgnoresUnstudiedDays(t *testing.T) {
	activity := logOf("2025-01-09", "2025-01-10")
	activity["2025-01-08"] = domain.ActivityDay{Date: "2025-01-08", Studied: false}
	activity["2025-01-07"] = domain.ActivityDay{Date: "2025-01-07", Studied: true}
	if got := ComputeStreak(activity, day("2025-01-10")); got.Current != 2 || got.Longest != 2 {
		t.Fatalf("expected 2/2, got %+v", got)
	}
}

func TestComputeStreakOrderIndependent(t *testing.T) {
	dates := []string{"2025-02-01", "2025-02-02", "2025-02-04", "2025-02-05", "2025-02-06", "2025-02-08"}
	want := ComputeStreak(logOf(dates...), day("2025-02-08"))

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), dates...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := ComputeStreak(logOf(shuffled...), day("2025-02-08")); got != want {
			t.Fatalf("streak depends on insertion order: %+v vs %+v", got, want)
		}
	}
	if want.Current != 1 || want.Longest != 3 {
		t.Fatalf("unexpected streak %+v", want)
	}
}

func TestRecordActivityAccumulates(t *testing.T) {
	activity := RecordActivity(nil, day("2025-01-11"), 5)
	activity = RecordActivity(activity, day("2025-01-11"), 7)
	got := activity["2025-01-11"]
	if !got.Studied || got.MinutesStudied != 12 {
		t.Fatalf("expected 12 studied minutes, got %+v", got)
	}
	if MinutesFor(61) != 2 || MinutesFor(0) != 0 || MinutesFor(60) != 1 {
		t.Fatalf("unexpected minute rounding")
	}
}

func TestEvaluateFlagsNewOnce(t *testing.T) {
	now := day("2025-01-11")
	m := Metrics{QuizzesCompleted: 1, PerfectScores: 1}

	first := Evaluate(Catalog, m, nil, now)
	unlocked := Unlocked(first)
	if len(unlocked) != 2 {
		t.Fatalf("expected first-quiz and perfect-score, got %+v", unlocked)
	}

	second := Evaluate(Catalog, m, earnedOnly(first), now.Add(time.Hour))
	if len(Unlocked(second)) != 0 {
		t.Fatalf("expected no re-announcement, got %+v", Unlocked(second))
	}
	for _, a := range second {
		if a.ID == "first-quiz" && (!a.Earned || !a.EarnedAt.Equal(now)) {
			t.Fatalf("expected original earnedAt preserved, got %+v", a)
		}
	}
}

func TestEvaluateKeepsEarnedWhenCriteriaLapse(t *testing.T) {
	now := day("2025-01-11")
	earned := earnedOnly(Evaluate(Catalog, Metrics{LongestStreak: 7}, nil, now))
	after := Evaluate(Catalog, Metrics{}, earned, now)
	for _, a := range after {
		if a.ID == "week-warrior" && !a.Earned {
			t.Fatalf("achievement revoked")
		}
	}
}

func newService(now time.Time) (*Service, *store.Store, *events.Bus) {
	bus := events.NewBus()
	clock := func() time.Time { return now }
	st := store.NewWithClock(memory.NewBackend(), bus, clock)
	return NewServiceWithClock(st, bus, clock), st, bus
}

func TestEvaluateAchievementsPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	svc, st, bus := newService(day("2025-01-11"))
	ch, cancel := bus.Subscribe(events.AchievementUnlocked)
	defer cancel()

	_ = st.Save(ctx, store.QuizResultsKey("q1"), domain.QuizAttempts{
		QuizID: "q1",
		Attempts: []domain.QuizResult{
			{AttemptID: "a", Score: 5, TotalQuestions: 5, PointsEarned: 55, TimeRemainingSeconds: 1200, Badges: []string{BadgePerfectScore, BadgeSpeedSolver}},
		},
	})

	got, err := svc.EvaluateAchievements(ctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	ids := map[string]bool{}
	for _, a := range Unlocked(got) {
		ids[a.ID] = true
	}
	if !ids["first-quiz"] || !ids["perfect-score"] || !ids["speed-solver"] || len(ids) != 3 {
		t.Fatalf("unexpected unlocks %v", ids)
	}
	for i := 0; i < 3; i++ {
		select {
		case ev := <-ch:
			if ev.Kind != events.AchievementUnlocked {
				t.Fatalf("unexpected event %+v", ev)
			}
		default:
			t.Fatalf("expected 3 unlock events, got %d", i)
		}
	}

	env := st.Envelope(ctx, store.KeyAchievements)
	again, _ := svc.EvaluateAchievements(ctx)
	if len(Unlocked(again)) != 0 {
		t.Fatalf("expected nothing new on re-evaluation")
	}
	if st.Envelope(ctx, store.KeyAchievements).LocalVersion != env.LocalVersion {
		t.Fatalf("expected no write when nothing changed")
	}

	sum := svc.Summary(ctx)
	if sum.EarnedCount != 3 || sum.TotalPoints != 55+25+50+40 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(sum.RecentActivity) != 7 || sum.RecentActivity[6].Date != "2025-01-11" {
		t.Fatalf("unexpected recent activity %+v", sum.RecentActivity)
	}
}

func TestMetricsCountsLessonsAndMinutes(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(day("2025-01-11"))

	_ = st.Save(ctx, store.LessonKey("1"), domain.LessonProgress{LessonID: "1", TotalSegments: 3, CompletedSegments: 3})
	_ = st.Save(ctx, store.LessonKey("2"), domain.LessonProgress{LessonID: "2", TotalSegments: 3, CompletedSegments: 1})
	_ = svc.RecordActivity(ctx, day("2025-01-10"), 10)
	_ = svc.RecordActivity(ctx, day("2025-01-11"), 15)

	m := svc.Metrics(ctx)
	if m.LessonsCompleted != 1 || m.StudyMinutes != 25 || m.CurrentStreak != 2 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestGoalsLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(day("2025-01-11"))

	if _, err := svc.AddGoal(ctx, GoalDraft{Title: "", Category: domain.GoalAssessment, TargetValue: 5, Deadline: "2025-02-01"}); !errors.Is(err, domain.ErrInvalidGoal) {
		t.Fatalf("expected invalid goal, got %v", err)
	}
	if _, err := svc.AddGoal(ctx, GoalDraft{Title: "x", Category: "bogus", TargetValue: 5, Deadline: "2025-02-01"}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	g, err := svc.AddGoal(ctx, GoalDraft{Title: "Finish quizzes", Category: domain.GoalAssessment, TargetValue: 4, Deadline: "2025-01-21"})
	if err != nil {
		t.Fatalf("add goal: %v", err)
	}
	_ = st.Save(ctx, store.QuizResultsKey("q1"), domain.QuizAttempts{QuizID: "q1", Attempts: []domain.QuizResult{{AttemptID: "a"}}})

	views := svc.Goals(ctx)
	if len(views) != 1 {
		t.Fatalf("expected one goal, got %d", len(views))
	}
	v := views[0]
	if v.CurrentValue != 1 || v.ProgressPercent != 25 || v.DaysLeft != 10 || v.Overdue {
		t.Fatalf("unexpected goal view %+v", v)
	}

	if err := svc.CompleteGoal(ctx, g.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if v := svc.Goals(ctx)[0]; v.ProgressPercent != 100 || v.Status != domain.GoalCompleted {
		t.Fatalf("expected completed goal at 100%%, got %+v", v)
	}

	if err := svc.DeleteGoal(ctx, g.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(svc.Goals(ctx)) != 0 {
		t.Fatalf("expected deleted goal hidden")
	}
	if err := svc.CompleteGoal(ctx, g.ID); !errors.Is(err, domain.ErrGoalNotFound) {
		t.Fatalf("expected goal not found, got %v", err)
	}
}

func TestGoalProgressCapsAndOverdue(t *testing.T) {
	g := domain.Goal{Category: domain.GoalConsistency, TargetValue: 3, Deadline: "2025-01-10", Status: domain.GoalActive}
	v := GoalProgress(g, Metrics{CurrentStreak: 9}, day("2025-01-11"))
	if v.ProgressPercent != 100 || !v.Overdue || v.DaysLeft != -1 {
		t.Fatalf("unexpected view %+v", v)
	}
}
