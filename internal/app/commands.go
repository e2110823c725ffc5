package app

import (
	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/session"
)

// CommandType names a session action.
type CommandType string

const (
	CommandSelect   CommandType = "select"
	CommandNext     CommandType = "next"
	CommandPrevious CommandType = "previous"
	CommandDone     CommandType = "done"
	CommandPause    CommandType = "pause"
	CommandResume   CommandType = "resume"
	CommandContinue CommandType = "continue"
	CommandSubmit   CommandType = "submit"
	CommandExit     CommandType = "exit"
)

// Command is a user action sent over REST or the websocket.
type Command struct {
	Type       CommandType `json:"type"`
	QuestionID string      `json:"questionId,omitempty"`
	OptionID   string      `json:"optionId,omitempty"`
}

// Outcome is the session view after a command. Result is set once submitted.
type Outcome struct {
	Snapshot session.Snapshot `json:"snapshot"`
	Result   *domain.Result   `json:"result,omitempty"`
}

// Review is a result with its annotated question trail.
type Review struct {
	Result    domain.Result              `json:"result"`
	Questions []domain.AnnotatedQuestion `json:"questions"`
}
