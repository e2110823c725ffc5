// Package engine holds the pure quiz logic: flattening grouped questions,
// shuffling, scoring and building the review trail.
package engine

import (
	"fmt"

	"studymed-quiz-service/internal/domain"
)

// Flatten expands quiz questions into the ordered list of answerable units.
// Group children inherit the group's case stem. Malformed nodes fail the whole
// call so totals are never computed over a partial list.
func Flatten(quiz domain.Quiz) ([]domain.FlatQuestion, error) {
	flat := make([]domain.FlatQuestion, 0, len(quiz.Questions))
	seen := make(map[string]struct{}, len(quiz.Questions))

	for i, node := range quiz.Questions {
		switch node.Kind {
		case domain.NodeSingle:
			if node.Single == nil {
				return nil, &domain.MalformedQuestionError{Position: i, Reason: "single node without question"}
			}
			if err := validateQuestion(i, *node.Single, seen); err != nil {
				return nil, err
			}
			flat = append(flat, domain.FlatQuestion{Question: *node.Single})
		case domain.NodeGroup:
			if node.Group == nil {
				return nil, &domain.MalformedQuestionError{Position: i, Reason: "group node without group"}
			}
			for _, child := range node.Group.ChildQuestions {
				if err := validateQuestion(i, child, seen); err != nil {
					return nil, err
				}
				flat = append(flat, domain.FlatQuestion{
					Question: child,
					CaseStem: node.Group.CaseStem,
					GroupID:  node.Group.ID,
				})
			}
		default:
			return nil, &domain.MalformedQuestionError{Position: i, Reason: fmt.Sprintf("unknown node type %q", node.Kind)}
		}
	}
	return flat, nil
}

// Validate checks a quiz without keeping the flattened list.
func Validate(quiz domain.Quiz) error {
	_, err := Flatten(quiz)
	return err
}

// MaxOptions is the number of options Letter can label (A to Z).
const MaxOptions = 26

func validateQuestion(position int, q domain.Question, seen map[string]struct{}) error {
	malformed := func(format string, args ...any) error {
		return &domain.MalformedQuestionError{Position: position, QuestionID: q.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if q.ID == "" {
		return malformed("missing id")
	}
	if _, dup := seen[q.ID]; dup {
		return malformed("duplicate question id")
	}
	seen[q.ID] = struct{}{}

	if !q.QuestionType.Valid() {
		return malformed("unknown question type %q", q.QuestionType)
	}
	if len(q.Options) == 0 {
		return malformed("no options")
	}
	if len(q.Options) > MaxOptions {
		return malformed("%d options, at most %d can be labelled", len(q.Options), MaxOptions)
	}

	optionIDs := make(map[string]struct{}, len(q.Options))
	correct := 0
	for _, opt := range q.Options {
		if opt.ID == "" {
			return malformed("option without id")
		}
		if _, dup := optionIDs[opt.ID]; dup {
			return malformed("duplicate option id %q", opt.ID)
		}
		optionIDs[opt.ID] = struct{}{}
		if opt.IsCorrect {
			correct++
		}
	}

	switch {
	case correct == 0:
		return malformed("no correct option")
	case q.QuestionType.Exclusive() && correct != 1:
		return malformed("%s needs exactly one correct option, has %d", q.QuestionType, correct)
	case q.QuestionType == domain.QuestionTrueFalse && len(q.Options) != 2:
		return malformed("true-false needs exactly two options, has %d", len(q.Options))
	}
	return nil
}
