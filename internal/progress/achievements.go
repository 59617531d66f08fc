package progress

import (
	"time"

	"eduquest-progress/internal/domain"
)

// Metrics are the accumulated values achievement criteria and goals read.
// Every field is derived from the store on demand.
type Metrics struct {
	QuizzesCompleted int `json:"quizzesCompleted"`
	PerfectScores    int `json:"perfectScores"`
	SpeedSolves      int `json:"speedSolves"`
	BestScorePercent int `json:"bestScorePercent"`
	QuizPoints       int `json:"quizPoints"`
	CurrentStreak    int `json:"currentStreak"`
	LongestStreak    int `json:"longestStreak"`
	LessonsCompleted int `json:"lessonsCompleted"`
	StudyMinutes     int `json:"studyMinutes"`
}

// Rule pairs an achievement with its side-effect-free criterion. Criteria only
// read counts that never decrease.
type Rule struct {
	Achievement domain.Achievement
	Criteria    func(Metrics) bool
}

// Catalog is the default achievement set.
var Catalog = []Rule{
	{
		Achievement: domain.Achievement{ID: "first-quiz", Title: "First Steps", Description: "Complete your first quiz", Category: "assessment", Points: 25},
		Criteria:    func(m Metrics) bool { return m.QuizzesCompleted >= 1 },
	},
	{
		Achievement: domain.Achievement{ID: "perfect-score", Title: "Perfect Score", Description: "Answer every question of a quiz correctly", Category: "academic", Points: 50},
		Criteria:    func(m Metrics) bool { return m.PerfectScores >= 1 },
	},
	{
		Achievement: domain.Achievement{ID: "quiz-champion", Title: "Quiz Champion", Description: "Score 100% in 3 quizzes", Category: "academic", Points: 100},
		Criteria:    func(m Metrics) bool { return m.PerfectScores >= 3 },
	},
	{
		Achievement: domain.Achievement{ID: "quiz-expert", Title: "Quiz Expert", Description: "Complete 100 quizzes", Category: "assessment", Points: 75},
		Criteria:    func(m Metrics) bool { return m.QuizzesCompleted >= 100 },
	},
	{
		Achievement: domain.Achievement{ID: "speed-solver", Title: "Speed Solver", Description: "Finish a quiz with more than 15 minutes left", Category: "assessment", Points: 40},
		Criteria:    func(m Metrics) bool { return m.SpeedSolves >= 1 },
	},
	{
		Achievement: domain.Achievement{ID: "week-warrior", Title: "Week Warrior", Description: "Study 7 days in a row", Category: "consistency", Points: 60},
		Criteria:    func(m Metrics) bool { return m.LongestStreak >= 7 },
	},
	{
		Achievement: domain.Achievement{ID: "streak-champion", Title: "Streak Champion", Description: "Study for 30 consecutive days", Category: "consistency", Points: 150},
		Criteria:    func(m Metrics) bool { return m.LongestStreak >= 30 },
	},
	{
		Achievement: domain.Achievement{ID: "lesson-learner", Title: "Lesson Learner", Description: "Complete 10 lessons", Category: "academic", Points: 100},
		Criteria:    func(m Metrics) bool { return m.LessonsCompleted >= 10 },
	},
}

// Evaluate runs every rule against m. Achievements already in earned stay
// earned with their original timestamp; rules passing for the first time come
// back with IsNew set and EarnedAt = now. Earned ids unknown to rules are kept.
func Evaluate(rules []Rule, m Metrics, earned []domain.Achievement, now time.Time) []domain.Achievement {
	prior := make(map[string]domain.Achievement, len(earned))
	for _, a := range earned {
		if a.Earned {
			prior[a.ID] = a
		}
	}

	out := make([]domain.Achievement, 0, len(rules)+len(prior))
	for _, rule := range rules {
		a := rule.Achievement
		if p, ok := prior[a.ID]; ok {
			a.Earned = true
			a.EarnedAt = p.EarnedAt
			delete(prior, a.ID)
		} else if rule.Criteria(m) {
			at := now
			a.Earned = true
			a.EarnedAt = &at
			a.IsNew = true
		}
		out = append(out, a)
	}
	for _, a := range earned {
		if _, ok := prior[a.ID]; ok {
			a.IsNew = false
			out = append(out, a)
		}
	}
	return out
}

// Unlocked returns the newly earned achievements of an evaluation.
func Unlocked(list []domain.Achievement) []domain.Achievement {
	var out []domain.Achievement
	for _, a := range list {
		if a.IsNew {
			out = append(out, a)
		}
	}
	return out
}

// earnedOnly strips locked entries and presentation flags for persistence.
func earnedOnly(list []domain.Achievement) []domain.Achievement {
	out := make([]domain.Achievement, 0, len(list))
	for _, a := range list {
		if !a.Earned {
			continue
		}
		a.IsNew = false
		out = append(out, a)
	}
	return out
}
