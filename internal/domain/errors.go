package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session does not exist or belongs to someone else.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrResultNotFound is returned when a submitted result cannot be found.
	ErrResultNotFound = errors.New("quiz result not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNoQuestions is returned when a quiz flattens to nothing answerable.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrInvalidConfig is returned when a session is started with unusable settings.
	ErrInvalidConfig = errors.New("invalid session configuration")
	// ErrInvalidTransition is returned when an action is not legal in the current session state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrInvalidCommand is returned for session commands that cannot be parsed.
	ErrInvalidCommand = errors.New("invalid session command")
	// ErrMalformedQuestion marks upstream data that violates the quiz document contract.
	ErrMalformedQuestion = errors.New("malformed question")
	// ErrUnauthenticated is returned when the caller has no verified identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrBookmarksUnavailable is returned when no bookmark backend is configured or it failed.
	ErrBookmarksUnavailable = errors.New("bookmarks unavailable")
)

// MalformedQuestionError describes a question node that cannot be used.
type MalformedQuestionError struct {
	Position   int // index of the top-level node
	QuestionID string
	Reason     string
}

func (e *MalformedQuestionError) Error() string {
	if e.QuestionID == "" {
		return fmt.Sprintf("malformed question at position %d: %s", e.Position, e.Reason)
	}
	return fmt.Sprintf("malformed question %q at position %d: %s", e.QuestionID, e.Position, e.Reason)
}

func (e *MalformedQuestionError) Unwrap() error { return ErrMalformedQuestion }
