package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNotFound is returned by store backends for a missing key.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownQuestionType is returned when decoding an unsupported question type.
	ErrUnknownQuestionType = errors.New("unknown question type")

	// ErrInvalidTransition is the base validation error for rejected state changes.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotStarted is returned when a session operation needs an InProgress session.
	ErrNotStarted = fmt.Errorf("%w: session not in progress", ErrInvalidTransition)
	// ErrSessionSubmitted is returned when mutating a terminal session.
	ErrSessionSubmitted = fmt.Errorf("%w: session already submitted", ErrInvalidTransition)
	// ErrAlreadyStarted is returned when starting a session twice.
	ErrAlreadyStarted = fmt.Errorf("%w: session already started", ErrInvalidTransition)
	// ErrAtLastQuestion is returned by goNext on the last question; callers submit instead.
	ErrAtLastQuestion = fmt.Errorf("%w: already at last question", ErrInvalidTransition)
	// ErrSegmentLocked is returned when jumping past the completion frontier.
	ErrSegmentLocked = fmt.Errorf("%w: segment locked", ErrInvalidTransition)
	// ErrSegmentOutOfRange is returned for segment numbers outside the lesson.
	ErrSegmentOutOfRange = fmt.Errorf("%w: segment out of range", ErrInvalidTransition)
	// ErrInvalidGoal is returned when a goal misses a required field.
	ErrInvalidGoal = fmt.Errorf("%w: goal requires title, category, target and deadline", ErrInvalidTransition)
	// ErrGoalNotFound is returned for an unknown goal id.
	ErrGoalNotFound = errors.New("goal not found")

	// ErrStorage wraps durable read/write failures.
	ErrStorage = errors.New("storage failure")
	// ErrSync wraps transport failures during reconciliation.
	ErrSync = errors.New("sync failure")
	// ErrOffline is reported when a sync is requested without connectivity.
	ErrOffline = errors.New("offline")
	// ErrUploadRejected is returned when the upload endpoint reports success=false.
	ErrUploadRejected = errors.New("upload rejected")
	// ErrFileTooLarge is returned before uploading files above the configured limit.
	ErrFileTooLarge = errors.New("file exceeds size limit")
	// ErrFileType is returned before uploading files with a non-accepted MIME type.
	ErrFileType = errors.New("file type not accepted")
)

// IsValidation reports whether err is a rejected state-machine guard.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
