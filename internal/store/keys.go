package store

import "strings"

// Logical record keys. One self-contained JSON record per key.
const (
	PrefixQuizSession = "quiz-session:"
	PrefixQuizResults = "quiz-results:"
	PrefixLesson      = "lesson-progress:"
	PrefixEnvelope    = "sync-envelope:"

	KeyActivityLog  = "activity-log"
	KeyAchievements = "achievements"
	KeyGoals        = "goals"
)

func QuizSessionKey(quizID string) string {
	return PrefixQuizSession + quizID
}

func QuizResultsKey(quizID string) string {
	return PrefixQuizResults + quizID
}

func LessonKey(lessonID string) string {
	return PrefixLesson + lessonID
}

func EnvelopeKey(resourceKey string) string {
	return PrefixEnvelope + resourceKey
}

// Syncable reports whether key is reconciled with the remote copy.
// Quiz sessions are device-local working state.
func Syncable(key string) bool {
	switch {
	case key == KeyActivityLog, key == KeyAchievements, key == KeyGoals:
		return true
	case strings.HasPrefix(key, PrefixLesson), strings.HasPrefix(key, PrefixQuizResults):
		return true
	}
	return false
}
