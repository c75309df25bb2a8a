package domain

import "errors"

// Error kinds. Callers classify failures with errors.Is against these.
var (
	// ErrNotFound covers missing records and records owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a state transition is no longer allowed.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyAwarded is returned when a badge is already unlocked for the user.
	ErrAlreadyAwarded = errors.New("badge already awarded")
	// ErrValidation indicates a malformed request or incomplete configuration.
	ErrValidation = errors.New("validation failed")
	// ErrTransientStore wraps persistence failures; the unit of work was rolled back.
	ErrTransientStore = errors.New("store unavailable")
)

var (
	ErrUserNotFound       = kind(ErrNotFound, "user not found")
	ErrTestNotFound       = kind(ErrNotFound, "test not found")
	ErrQuestionNotFound   = kind(ErrNotFound, "question not found")
	ErrAttemptNotFound    = kind(ErrNotFound, "attempt not found")
	ErrAssignmentNotFound = kind(ErrNotFound, "assignment not found")
	ErrBadgeNotFound      = kind(ErrNotFound, "badge not found")
	ErrChallengeNotFound  = kind(ErrNotFound, "challenge not found")
	ErrNotRanked          = kind(ErrNotFound, "user is not on the leaderboard")

	ErrAlreadySubmitted    = kind(ErrConflict, "attempt already submitted")
	ErrAttemptExists       = kind(ErrConflict, "test does not allow another attempt")
	ErrAssignmentCompleted = kind(ErrConflict, "assignment already completed")
	ErrAssignmentExists    = kind(ErrConflict, "question already assigned in this practice set")

	ErrInvalidAnswers   = kind(ErrValidation, "answers must be an object of questionId to answer")
	ErrMissingDuration  = kind(ErrValidation, "test has no duration configured")
	ErrInvalidAmount    = kind(ErrValidation, "xp amount must be positive")
	ErrInvalidDelta     = kind(ErrValidation, "progress delta must be positive")
	ErrChallengeClosed  = kind(ErrValidation, "challenge is not active")
	ErrInvalidTimeSpent = kind(ErrValidation, "time spent must not be negative")

	ErrMissingAnswer = kind(ErrInvalidAnswers, "answer is required")
)

type kindError struct {
	kind error
	msg  string
}

func kind(k error, msg string) error { return &kindError{kind: k, msg: msg} }

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
