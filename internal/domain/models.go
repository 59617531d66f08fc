package domain

import "time"

// SessionState is the lifecycle position of a quiz session.
type SessionState string

const (
	StateNotStarted SessionState = "not-started"
	StateInProgress SessionState = "in-progress"
	StateSubmitted  SessionState = "submitted"
)

// QuizSession is one attempt at a quiz. Answers are keyed by question index.
type QuizSession struct {
	QuizID               string         `json:"quizId"`
	AttemptID            string         `json:"attemptId"`
	State                SessionState   `json:"state"`
	StartedAt            time.Time      `json:"startedAt"`
	TimeLimitSeconds     int            `json:"timeLimitSeconds"`
	TimeRemainingSeconds int            `json:"timeRemainingSeconds"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	Answers              map[int]Answer `json:"answers"`
	SubmittedAt          *time.Time     `json:"submittedAt,omitempty"`
	IsSubmitted          bool           `json:"isSubmitted"`
}

// Clone returns a deep copy safe to hand to other components.
func (s QuizSession) Clone() QuizSession {
	out := s
	out.Answers = make(map[int]Answer, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	if s.SubmittedAt != nil {
		t := *s.SubmittedAt
		out.SubmittedAt = &t
	}
	return out
}

// QuestionOutcome is the scored result of one question.
type QuestionOutcome struct {
	QuestionID    string  `json:"questionId"`
	Answer        *Answer `json:"answer,omitempty"`
	Correct       bool    `json:"correct"`
	PointsAwarded int     `json:"pointsAwarded"`
}

// QuizResult is the frozen outcome of a submitted session.
type QuizResult struct {
	QuizID               string            `json:"quizId"`
	AttemptID            string            `json:"attemptId"`
	Score                int               `json:"score"`
	TotalQuestions       int               `json:"totalQuestions"`
	PointsEarned         int               `json:"pointsEarned"`
	TimeSpentSeconds     int               `json:"timeSpent"`
	TimeRemainingSeconds int               `json:"timeRemaining"`
	Badges               []string          `json:"badgesEarned"`
	Outcomes             []QuestionOutcome `json:"outcomes"`
	NewAchievements      []string          `json:"newAchievements,omitempty"`
	SubmittedAt          time.Time         `json:"submittedAt"`
}

// Perfect reports whether every question was credited.
func (r QuizResult) Perfect() bool {
	return r.TotalQuestions > 0 && r.Score == r.TotalQuestions
}

// QuizAttempts is the append-only attempt history stored per quiz.
type QuizAttempts struct {
	QuizID   string       `json:"quizId"`
	Attempts []QuizResult `json:"attempts"`
}

// Find returns the attempt with the given id.
func (a QuizAttempts) Find(attemptID string) (QuizResult, bool) {
	for _, r := range a.Attempts {
		if r.AttemptID == attemptID {
			return r, true
		}
	}
	return QuizResult{}, false
}

// LessonProgress is the per-lesson record. CompletedSegments never decreases.
type LessonProgress struct {
	LessonID          string    `json:"lessonId"`
	TotalSegments     int       `json:"totalSegments"`
	CurrentSegment    int       `json:"currentSegment"`
	CompletedSegments int       `json:"completedSegments"`
	IsBookmarked      bool      `json:"isBookmarked"`
	LastAccessed      time.Time `json:"lastAccessed"`
}

// Completed reports whether every segment has been reached.
func (p LessonProgress) Completed() bool {
	return p.TotalSegments > 0 && p.CompletedSegments >= p.TotalSegments
}

// ActivityDay is the study record of one calendar day.
type ActivityDay struct {
	Date           string `json:"date"`
	Studied        bool   `json:"studied"`
	MinutesStudied int    `json:"minutesStudied"`
}

// ActivityLog maps a day key (YYYY-MM-DD) to its activity.
type ActivityLog map[string]ActivityDay

// DayLayout is the calendar day key format.
const DayLayout = "2006-01-02"

// DayKey formats t as a calendar day key in t's location.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// StreakSummary is derived from the activity log and never stored.
type StreakSummary struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Achievement is an unlockable badge. Once Earned it stays earned.
type Achievement struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Points      int        `json:"points"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earnedAt,omitempty"`
	IsNew       bool       `json:"isNew,omitempty"`
}

// SyncEnvelope tracks local mutations of one resource key.
// LastSyncedVersion <= LocalVersion always holds.
type SyncEnvelope struct {
	LocalVersion      int64      `json:"localVersion"`
	LastSyncedVersion int64      `json:"lastSyncedVersion"`
	LastSyncedAt      *time.Time `json:"lastSyncedAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Dirty reports whether local mutations have not been synced.
func (e SyncEnvelope) Dirty() bool {
	return e.LastSyncedVersion < e.LocalVersion
}

// GoalCategory selects which derived metric drives a goal.
type GoalCategory string

const (
	GoalAcademic    GoalCategory = "academic"
	GoalConsistency GoalCategory = "consistency"
	GoalAssessment  GoalCategory = "assessment"
	GoalSkill       GoalCategory = "skill"
)

// GoalStatus is active until completed.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
)

// Goal is a learner-defined target. Its current value is derived, not stored.
type Goal struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Category    GoalCategory `json:"category"`
	TargetValue int          `json:"targetValue"`
	Deadline    string       `json:"deadline"`
	Priority    string       `json:"priority"`
	Status      GoalStatus   `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	DeletedAt   *time.Time   `json:"deletedAt,omitempty"`
}

// UploadedFile is the descriptor returned by the content upload endpoint.
type UploadedFile struct {
	Name       string `json:"name"`
	StoredName string `json:"storedName"`
	Size       int64  `json:"size"`
}
