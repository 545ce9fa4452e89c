package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration is returned when a required source URL is not configured.
	ErrConfiguration = errors.New("source url not configured")
	// ErrInvalidCredentials is returned when no credential row matches the login attempt.
	ErrInvalidCredentials = errors.New("invalid account id or password")
	// ErrSessionConflict is returned when another live session holds the account.
	ErrSessionConflict = errors.New("another session is active for this account")
	// ErrSessionInvalidated indicates the client session was logged out or evicted.
	ErrSessionInvalidated = errors.New("session is no longer active")
	// ErrSourceFetch wraps failures downloading or parsing a row source.
	ErrSourceFetch = errors.New("fetch row source")
	// ErrEmptyQuestionSet is returned when the question source yields no usable questions.
	ErrEmptyQuestionSet = errors.New("no questions found")
	// ErrPersistence marks a failed completion record save.
	ErrPersistence = errors.New("save completion record")

	ErrInvalidMode          = errors.New("mode must be practice or test")
	ErrInvalidQuestionCount = errors.New("question count must be \"all\" or a positive integer")
	ErrLearnerRequired      = errors.New("learner name is required")
	ErrInvalidLearnerKey    = errors.New("learner name must not contain '/'")

	// ErrRunNotFound is returned when no quiz run exists for the client session.
	ErrRunNotFound = errors.New("quiz run not found")
	// ErrRunSuperseded is returned when a newer start replaced the run being loaded.
	ErrRunSuperseded = errors.New("quiz run superseded by a newer start")
	ErrRunFinished   = errors.New("quiz run already finished")
	// ErrAlreadyRevealed is returned for any selection change after evaluation.
	ErrAlreadyRevealed = errors.New("answer already revealed")
	ErrNotAnswered     = errors.New("current question not answered yet")
	ErrUnknownOption   = errors.New("option not offered by this question")
	ErrNotMultiSelect  = errors.New("question is single-select; it is evaluated on selection")
	ErrEmptySelection  = errors.New("select at least one option before submitting")
)

// SessionConflictError carries the suggested wait before the rival session goes stale.
type SessionConflictError struct {
	RetryAfter time.Duration
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("%s (retry in %s)", ErrSessionConflict, e.RetryAfter.Round(time.Second))
}

func (e *SessionConflictError) Is(target error) bool {
	return target == ErrSessionConflict
}
