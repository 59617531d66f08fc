package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"eduquest-progress/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"math-basics-quiz-1": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "math-basics-quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetQuiz(context.Background(), "math-basics-quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	repo.Invalidate("math-basics-quiz-1")
	_, _ = repo.GetQuiz(context.Background(), "math-basics-quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"math-basics-quiz-1": sampleQuiz()})}
	repo := NewQuizRepositoryWithClock(loader, time.Minute, func() time.Time { return now })

	_, _ = repo.GetQuiz(context.Background(), "math-basics-quiz-1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "math-basics-quiz-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryUnknownQuiz(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "math-basics-quiz-1",
		Title:            "Math Basics - Quiz 1",
		TimeLimitSeconds: 1800,
		Questions: []domain.Question{
			{
				ID:     "1",
				Prompt: "What is the sum of 15 + 27?",
				Kind: domain.MultipleChoice{
					Options:       []domain.Option{{ID: "a", Text: "41"}, {ID: "b", Text: "42"}},
					CorrectOption: "b",
				},
			},
		},
	}
}
