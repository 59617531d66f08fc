package scoring

import (
	"testing"

	"eduquest-progress/internal/domain"
)

func TestScoreByKind(t *testing.T) {
	mc := domain.Question{ID: "q1", Kind: domain.MultipleChoice{
		Options:       []domain.Option{{ID: "a"}, {ID: "b"}},
		CorrectOption: "b",
	}}
	tf := domain.Question{ID: "q2", Points: 3, Kind: domain.TrueFalse{Correct: true}}
	text := domain.Question{ID: "q3", Kind: domain.TextInput{}}

	cases := []struct {
		name    string
		q       domain.Question
		a       *domain.Answer
		correct bool
		points  int
	}{
		{"mc correct", mc, ptr(domain.OptionAnswer("b")), true, 1},
		{"mc wrong", mc, ptr(domain.OptionAnswer("a")), false, 0},
		{"mc case sensitive", mc, ptr(domain.OptionAnswer("B")), false, 0},
		{"mc wrong kind", mc, ptr(domain.TextAnswer("b")), false, 0},
		{"tf correct uses points", tf, ptr(domain.BoolAnswer(true)), true, 3},
		{"tf wrong", tf, ptr(domain.BoolAnswer(false)), false, 0},
		{"text credited", text, ptr(domain.TextAnswer("  96 square cm ")), true, 1},
		{"text blank", text, ptr(domain.TextAnswer("   ")), false, 0},
		{"absent", mc, nil, false, 0},
	}
	for _, tc := range cases {
		got := Score(tc.q, tc.a)
		if got.Correct != tc.correct || got.PointsAwarded != tc.points {
			t.Fatalf("%s: expected correct=%v points=%d, got %+v", tc.name, tc.correct, tc.points, got)
		}
	}
}

func TestGradeFiveQuestionQuiz(t *testing.T) {
	questions := fiveQuestions()
	answers := map[int]domain.Answer{
		0: domain.OptionAnswer("b"),
		1: domain.BoolAnswer(true),
		2: domain.OptionAnswer("a"),
		3: domain.TextAnswer("some text"),
		4: domain.OptionAnswer("c"),
	}

	outcomes, score := Grade(questions, answers)
	if score != 5 {
		t.Fatalf("expected score 5, got %d", score)
	}
	if len(outcomes) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(outcomes))
	}
	if got := PointsEarned(score, 120); got != 55 {
		t.Fatalf("expected 55 points with time left, got %d", got)
	}
	if got := PointsEarned(score, 0); got != 50 {
		t.Fatalf("expected 50 points at timeout, got %d", got)
	}
}

func TestGradeCountsNotWeights(t *testing.T) {
	questions := []domain.Question{
		{ID: "q1", Points: 5, Kind: domain.TrueFalse{Correct: true}},
		{ID: "q2", Points: 5, Kind: domain.TrueFalse{Correct: false}},
	}
	_, score := Grade(questions, map[int]domain.Answer{0: domain.BoolAnswer(true)})
	if score != 1 {
		t.Fatalf("expected count-based score 1, got %d", score)
	}
}

func fiveQuestions() []domain.Question {
	return []domain.Question{
		{ID: "1", Kind: domain.MultipleChoice{CorrectOption: "b"}},
		{ID: "2", Kind: domain.TrueFalse{Correct: true}},
		{ID: "3", Kind: domain.MultipleChoice{CorrectOption: "a"}},
		{ID: "4", Kind: domain.TextInput{}},
		{ID: "5", Kind: domain.MultipleChoice{CorrectOption: "c"}},
	}
}

func ptr(a domain.Answer) *domain.Answer {
	return &a
}
