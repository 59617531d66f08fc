package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"eduquest-progress/internal/clock"
	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/progress"
	"eduquest-progress/internal/scoring"
	"eduquest-progress/internal/store"
)

var (
	errAnswerMismatch = fmt.Errorf("%w: answer does not match question type", domain.ErrInvalidTransition)
	errRetakeOpen     = fmt.Errorf("%w: retake requires a submitted session", domain.ErrInvalidTransition)
)

// Deps are the collaborators shared by controllers and trackers.
type Deps struct {
	Store    *store.Store
	Progress *progress.Service
	Clock    clock.Clock
	Events   events.Publisher
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.NewReal()
	}
	if d.Events == nil {
		d.Events = events.Discard{}
	}
	return d
}

// TickPayload is published with every quiz.tick event.
type TickPayload struct {
	QuizID               string `json:"quizId"`
	TimeRemainingSeconds int    `json:"timeRemaining"`
}

// QuizController drives one quiz session through
// not-started -> in-progress -> submitted.
type QuizController struct {
	deps Deps
	quiz domain.Quiz

	mu        sync.Mutex
	session   domain.QuizSession
	result    *domain.QuizResult
	stopTimer clock.Cancel
	timerGen  int
}

func NewQuizController(quiz domain.Quiz, deps Deps) *QuizController {
	return &QuizController{
		deps: deps.withDefaults(),
		quiz: quiz,
		session: domain.QuizSession{
			QuizID:           quiz.ID,
			State:            domain.StateNotStarted,
			TimeLimitSeconds: quiz.TimeLimitSeconds,
			Answers:          map[int]domain.Answer{},
		},
	}
}

// ResumeQuizController rebuilds a controller from a persisted session. An
// in-progress session restarts its countdown from the stored remaining time; a
// submitted one reloads its result from the attempt history.
func ResumeQuizController(ctx context.Context, quiz domain.Quiz, session domain.QuizSession, deps Deps) *QuizController {
	c := NewQuizController(quiz, deps)
	if session.Answers == nil {
		session.Answers = map[int]domain.Answer{}
	}
	c.session = session

	switch session.State {
	case domain.StateInProgress:
		c.startTimerLocked()
	case domain.StateSubmitted:
		var history domain.QuizAttempts
		if c.deps.Store.Load(ctx, store.QuizResultsKey(quiz.ID), &history) {
			if r, ok := history.Find(session.AttemptID); ok {
				c.result = &r
			}
		}
	}
	return c
}

func (c *QuizController) Quiz() domain.Quiz {
	return c.quiz
}

// Session returns a copy of the current session state.
func (c *QuizController) Session() domain.QuizSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Result returns the frozen result once submitted.
func (c *QuizController) Result() (domain.QuizResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return domain.QuizResult{}, false
	}
	return *c.result, true
}

// Start moves a fresh session into progress and starts the countdown.
func (c *QuizController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State != domain.StateNotStarted {
		return c.reject("start", domain.ErrAlreadyStarted)
	}
	return c.startLocked(ctx)
}

func (c *QuizController) startLocked(ctx context.Context) error {
	if len(c.quiz.Questions) == 0 {
		return fmt.Errorf("%w: %s has no questions", domain.ErrQuizNotFound, c.quiz.ID)
	}
	c.session = domain.QuizSession{
		QuizID:               c.quiz.ID,
		AttemptID:            uuid.New().String(),
		State:                domain.StateInProgress,
		StartedAt:            c.deps.Clock.Now(),
		TimeLimitSeconds:     c.quiz.TimeLimitSeconds,
		TimeRemainingSeconds: c.quiz.TimeLimitSeconds,
		Answers:              map[int]domain.Answer{},
	}
	c.result = nil
	c.persistLocked(ctx)
	c.startTimerLocked()
	return nil
}

// SelectAnswer overwrites the answer of the current question.
func (c *QuizController) SelectAnswer(ctx context.Context, answer domain.Answer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireInProgress("select answer"); err != nil {
		return err
	}
	q := c.quiz.Questions[c.session.CurrentQuestionIndex]
	if !answerFits(q, answer) {
		return c.reject("select answer", errAnswerMismatch)
	}
	c.session.Answers[c.session.CurrentQuestionIndex] = answer
	c.persistLocked(ctx)
	return nil
}

// GoNext moves to the next question. From the last question callers submit.
func (c *QuizController) GoNext(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireInProgress("next"); err != nil {
		return err
	}
	if c.session.CurrentQuestionIndex >= len(c.quiz.Questions)-1 {
		return c.reject("next", domain.ErrAtLastQuestion)
	}
	c.session.CurrentQuestionIndex++
	c.persistLocked(ctx)
	return nil
}

// GoPrevious moves back one question; it stays on the first question.
func (c *QuizController) GoPrevious(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireInProgress("previous"); err != nil {
		return err
	}
	if c.session.CurrentQuestionIndex == 0 {
		return nil
	}
	c.session.CurrentQuestionIndex--
	c.persistLocked(ctx)
	return nil
}

// Tick decrements the remaining time and auto-submits at zero. Ticks outside
// in-progress are ignored.
func (c *QuizController) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickLocked(ctx)
}

func (c *QuizController) tickLocked(ctx context.Context) {
	if c.session.State != domain.StateInProgress {
		return
	}
	if c.session.TimeRemainingSeconds > 0 {
		c.session.TimeRemainingSeconds--
	}
	c.deps.Events.Publish(events.Event{
		Kind:    events.QuizTick,
		Key:     c.quiz.ID,
		Payload: TickPayload{QuizID: c.quiz.ID, TimeRemainingSeconds: c.session.TimeRemainingSeconds},
	})
	if c.session.TimeRemainingSeconds == 0 {
		log.Printf("[quiz] %s: time expired, submitting", c.quiz.ID)
		c.submitLocked(ctx)
		return
	}
	c.persistLocked(ctx)
}

// Submit grades the session and freezes it. Submitting again returns the
// stored result without re-scoring. Completeness is not checked here: the
// UI gates manual submission with CanSubmit, timeouts submit whatever exists.
func (c *QuizController) Submit(ctx context.Context) (domain.QuizResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.session.State {
	case domain.StateSubmitted:
		if c.result != nil {
			return *c.result, nil
		}
		return domain.QuizResult{}, nil
	case domain.StateNotStarted:
		return domain.QuizResult{}, c.reject("submit", domain.ErrNotStarted)
	}
	return c.submitLocked(ctx), nil
}

func (c *QuizController) submitLocked(ctx context.Context) domain.QuizResult {
	c.releaseTimerLocked()

	now := c.deps.Clock.Now()
	outcomes, score := scoring.Grade(c.quiz.Questions, c.session.Answers)
	remaining := c.session.TimeRemainingSeconds
	spent := c.session.TimeLimitSeconds - remaining
	if c.session.TimeLimitSeconds <= 0 {
		spent = int(now.Sub(c.session.StartedAt) / time.Second)
	}

	result := domain.QuizResult{
		QuizID:               c.quiz.ID,
		AttemptID:            c.session.AttemptID,
		Score:                score,
		TotalQuestions:       len(c.quiz.Questions),
		PointsEarned:         scoring.PointsEarned(score, remaining),
		TimeSpentSeconds:     spent,
		TimeRemainingSeconds: remaining,
		Outcomes:             outcomes,
		SubmittedAt:          now,
	}
	result.Badges = progress.AttemptBadges(result)

	c.session.State = domain.StateSubmitted
	c.session.IsSubmitted = true
	c.session.SubmittedAt = &now
	c.result = &result

	c.persistLocked(ctx)
	c.appendAttemptLocked(ctx, result)

	if c.deps.Progress != nil {
		if err := c.deps.Progress.RecordActivity(ctx, now, progress.MinutesFor(spent)); err != nil {
			log.Printf("[quiz] %s: record activity: %v", c.quiz.ID, err)
		}
		unlocked, err := c.deps.Progress.EvaluateAchievements(ctx)
		if err != nil {
			log.Printf("[quiz] %s: evaluate achievements: %v", c.quiz.ID, err)
		}
		for _, a := range progress.Unlocked(unlocked) {
			c.result.NewAchievements = append(c.result.NewAchievements, a.ID)
		}
	}

	log.Printf("[quiz] %s: submitted attempt %s score %d/%d", c.quiz.ID, result.AttemptID, score, result.TotalQuestions)
	c.deps.Events.Publish(events.Event{Kind: events.QuizSubmitted, Key: c.quiz.ID, Payload: *c.result})
	return *c.result
}

func (c *QuizController) appendAttemptLocked(ctx context.Context, result domain.QuizResult) {
	var history domain.QuizAttempts
	err := c.deps.Store.Update(ctx, store.QuizResultsKey(c.quiz.ID), &history, func(bool) error {
		if _, ok := history.Find(result.AttemptID); ok {
			return store.ErrNoChange
		}
		history.QuizID = c.quiz.ID
		history.Attempts = append(history.Attempts, result)
		return nil
	})
	if err != nil {
		log.Printf("[quiz] %s: store result: %v", c.quiz.ID, err)
	}
}

// Retake starts a new attempt after a submission. Earlier attempts stay in
// the history.
func (c *QuizController) Retake(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State != domain.StateSubmitted {
		return c.reject("retake", errRetakeOpen)
	}
	return c.startLocked(ctx)
}

// Close releases the countdown and writes the session back, e.g. when the
// learner navigates away. The session stays resumable.
func (c *QuizController) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseTimerLocked()
	if c.session.State == domain.StateInProgress {
		c.persistLocked(ctx)
	}
}

// CanSubmit reports whether every question has an answer.
func (c *QuizController) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State != domain.StateInProgress {
		return false
	}
	for i := range c.quiz.Questions {
		if _, ok := c.session.Answers[i]; !ok {
			return false
		}
	}
	return true
}

// CanGoNext reports whether the current question is answered and not last.
func (c *QuizController) CanGoNext() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State != domain.StateInProgress {
		return false
	}
	_, answered := c.session.Answers[c.session.CurrentQuestionIndex]
	return answered && c.session.CurrentQuestionIndex < len(c.quiz.Questions)-1
}

// Ticking reports whether a countdown subscription is held.
func (c *QuizController) Ticking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTimer != nil
}

func (c *QuizController) startTimerLocked() {
	if c.session.TimeLimitSeconds <= 0 || c.stopTimer != nil {
		return
	}
	c.timerGen++
	gen := c.timerGen
	c.stopTimer = c.deps.Clock.Every(time.Second, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.timerGen || c.stopTimer == nil {
			return
		}
		c.tickLocked(context.Background())
	})
}

func (c *QuizController) releaseTimerLocked() {
	if c.stopTimer == nil {
		return
	}
	c.stopTimer()
	c.stopTimer = nil
	c.timerGen++
}

func (c *QuizController) requireInProgress(op string) error {
	switch c.session.State {
	case domain.StateSubmitted:
		return c.reject(op, domain.ErrSessionSubmitted)
	case domain.StateNotStarted:
		return c.reject(op, domain.ErrNotStarted)
	}
	return nil
}

func (c *QuizController) reject(op string, err error) error {
	log.Printf("[quiz] %s: %s rejected: %v", c.quiz.ID, op, err)
	return err
}

func (c *QuizController) persistLocked(ctx context.Context) {
	if err := c.deps.Store.Save(ctx, store.QuizSessionKey(c.quiz.ID), c.session); err != nil {
		log.Printf("[quiz] %s: persist session: %v", c.quiz.ID, err)
	}
}

func answerFits(q domain.Question, a domain.Answer) bool {
	switch q.Kind.(type) {
	case domain.MultipleChoice:
		return a.Kind == domain.AnswerOption
	case domain.TrueFalse:
		return a.Kind == domain.AnswerBool
	case domain.TextInput:
		return a.Kind == domain.AnswerText
	}
	return false
}
