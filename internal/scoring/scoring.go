// Package scoring maps a question and a submitted answer to credit.
//
// The session score is the number of credited questions, not the sum of each
// question's points. Free-text answers are credited when non-empty.
package scoring

import (
	"strings"

	"eduquest-progress/internal/domain"
)

const (
	// PointsPerCorrect is awarded per credited question in the session total.
	PointsPerCorrect = 10
	// TimeBonus is awarded when a session is submitted with time left.
	TimeBonus = 5
)

// Result is the credit given to one question.
type Result struct {
	Correct       bool
	PointsAwarded int
}

// Score grades a single answer. A nil answer means the question was never answered.
func Score(q domain.Question, a *domain.Answer) Result {
	if a == nil {
		return Result{}
	}

	var correct bool
	switch k := q.Kind.(type) {
	case domain.MultipleChoice:
		correct = a.Kind == domain.AnswerOption && a.Option == k.CorrectOption
	case domain.TrueFalse:
		correct = a.Kind == domain.AnswerBool && a.Bool == k.Correct
	case domain.TextInput:
		correct = a.Kind == domain.AnswerText && strings.TrimSpace(a.Text) != ""
	}
	if !correct {
		return Result{}
	}
	return Result{Correct: true, PointsAwarded: q.PointValue()}
}

// Grade scores every question against answers keyed by question index and
// returns the per-question outcomes plus the count of credited questions.
func Grade(questions []domain.Question, answers map[int]domain.Answer) ([]domain.QuestionOutcome, int) {
	outcomes := make([]domain.QuestionOutcome, 0, len(questions))
	score := 0
	for i, q := range questions {
		var ans *domain.Answer
		if a, ok := answers[i]; ok {
			a := a
			ans = &a
		}
		res := Score(q, ans)
		if res.Correct {
			score++
		}
		outcomes = append(outcomes, domain.QuestionOutcome{
			QuestionID:    q.ID,
			Answer:        ans,
			Correct:       res.Correct,
			PointsAwarded: res.PointsAwarded,
		})
	}
	return outcomes, score
}

// PointsEarned is score*10 plus a bonus of 5 when time remained at submission.
func PointsEarned(score, timeRemainingSeconds int) int {
	points := score * PointsPerCorrect
	if timeRemainingSeconds > 0 {
		points += TimeBonus
	}
	return points
}
