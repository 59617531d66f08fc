package app

import (
	"context"
	"log"

	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/infra/memory"
	"eduquest-progress/internal/store"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizService opens quiz sessions and lessons and keeps one live controller
// per quiz so that every shell connection shares a single countdown.
type QuizService struct {
	quizzes  QuizRepository
	sessions *memory.SessionStore[*QuizController]
	lessons  *memory.SessionStore[*LessonTracker]
	deps     Deps
}

func NewQuizService(quizzes QuizRepository, deps Deps) *QuizService {
	return &QuizService{
		quizzes:  quizzes,
		sessions: memory.NewSessionStore[*QuizController](),
		lessons:  memory.NewSessionStore[*LessonTracker](),
		deps:     deps.withDefaults(),
	}
}

// Open returns the live controller for quizID. A session persisted by an
// earlier process is resumed, otherwise a not-started controller is created.
func (s *QuizService) Open(ctx context.Context, quizID string) (*QuizController, error) {
	// Users cannot open unknown quizzes.
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	return s.sessions.GetOrCreate(quizID, func() (*QuizController, error) {
		var saved domain.QuizSession
		if s.deps.Store.Load(ctx, store.QuizSessionKey(quizID), &saved) && saved.State != domain.StateNotStarted {
			log.Printf("[quiz] %s: resuming %s session %s", quizID, saved.State, saved.AttemptID)
			return ResumeQuizController(ctx, quiz, saved, s.deps), nil
		}
		return NewQuizController(quiz, s.deps), nil
	})
}

// Get returns the live controller of an opened quiz.
func (s *QuizService) Get(quizID string) (*QuizController, bool) {
	return s.sessions.Get(quizID)
}

// Close releases the countdown of a quiz and drops its controller. The
// persisted session stays resumable.
func (s *QuizService) Close(ctx context.Context, quizID string) {
	c, ok := s.sessions.Get(quizID)
	if !ok {
		return
	}
	c.Close(ctx)
	s.sessions.DeleteIf(quizID, func(live *QuizController) bool { return live == c })
}

// OpenLesson returns the tracker of a lesson, loading its stored record.
func (s *QuizService) OpenLesson(ctx context.Context, lessonID string, totalSegments int) (*LessonTracker, error) {
	return s.lessons.GetOrCreate(lessonID, func() (*LessonTracker, error) {
		return OpenLesson(ctx, lessonID, totalSegments, s.deps)
	})
}

// Attempts returns the stored attempt history of a quiz.
func (s *QuizService) Attempts(ctx context.Context, quizID string) domain.QuizAttempts {
	history := domain.QuizAttempts{QuizID: quizID}
	s.deps.Store.Load(ctx, store.QuizResultsKey(quizID), &history)
	return history
}

// Shutdown releases every live countdown.
func (s *QuizService) Shutdown(ctx context.Context) {
	for _, id := range s.sessions.Keys() {
		s.Close(ctx, id)
	}
}
