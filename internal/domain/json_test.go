package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestQuizDecodesSinglesAndGroups(t *testing.T) {
	raw := `{
		"_id": "quiz-1",
		"title": "Tim mạch",
		"questions": [
			{"type": "single", "_id": "q1", "questionText": "Q1", "questionType": "single-choice",
			 "options": [{"_id": "o1", "text": "A", "isCorrect": true}]},
			{"type": "group", "_id": "g1", "caseStem": "Bệnh nhân nam 60 tuổi",
			 "childQuestions": [
				{"_id": "q2", "questionText": "Q2", "questionType": "multi-select",
				 "options": [{"_id": "o2", "text": "B", "isCorrect": true}]}
			 ]},
			{"_id": "q3", "questionText": "legacy", "questionType": "single-choice",
			 "options": [{"_id": "o3", "text": "C", "isCorrect": true}]}
		]
	}`

	var quiz Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(quiz.Questions) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(quiz.Questions))
	}
	if quiz.Questions[0].Kind != NodeSingle || quiz.Questions[0].Single.ID != "q1" {
		t.Fatalf("unexpected first node %+v", quiz.Questions[0])
	}
	group := quiz.Questions[1]
	if group.Kind != NodeGroup || group.Group.CaseStem != "Bệnh nhân nam 60 tuổi" || len(group.Group.ChildQuestions) != 1 {
		t.Fatalf("unexpected group node %+v", group)
	}
	if quiz.Questions[2].Kind != NodeSingle {
		t.Fatalf("expected untyped node to decode as single, got %q", quiz.Questions[2].Kind)
	}
}

func TestQuizRoundTripKeepsDiscriminator(t *testing.T) {
	quiz := Quiz{
		ID:    "quiz-1",
		Title: "Round trip",
		Questions: []QuestionNode{
			GroupNode(Group{ID: "g1", CaseStem: "stem", ChildQuestions: []Question{{ID: "q1", QuestionType: QuestionTrueFalse}}}),
		},
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Quiz
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Questions[0].Kind != NodeGroup || decoded.Questions[0].Group.ChildQuestions[0].ID != "q1" {
		t.Fatalf("round trip lost group: %s", data)
	}
}

func TestQuizRejectsUnknownTypeAndNestedGroups(t *testing.T) {
	cases := map[string]string{
		"unknown type": `{"questions": [{"type": "essay", "_id": "q1"}]}`,
		"nested group": `{"questions": [{"_id": "x"}, {"type": "group", "_id": "g1", "childQuestions": [{"type": "group", "_id": "g2"}]}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var quiz Quiz
			err := json.Unmarshal([]byte(raw), &quiz)
			if !errors.Is(err, ErrMalformedQuestion) {
				t.Fatalf("expected malformed question error, got %v", err)
			}
		})
	}

	var quiz Quiz
	err := json.Unmarshal([]byte(cases["nested group"]), &quiz)
	var malformed *MalformedQuestionError
	if !errors.As(err, &malformed) || malformed.Position != 1 || malformed.QuestionID != "g1" {
		t.Fatalf("expected position 1 / g1, got %+v", malformed)
	}
}

func TestQuestionTypeDefaultsToSingleChoice(t *testing.T) {
	raw := `{"title": "legacy", "questions": [
		{"_id": "q1", "questionText": "no type", "options": [{"_id": "o1", "text": "A", "isCorrect": true}]},
		{"_id": "g1", "caseStem": "stem", "childQuestions": [
			{"_id": "q2", "questionText": "child", "options": [{"_id": "o2", "text": "B", "isCorrect": true}]}
		]}
	]}`

	var quiz Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := quiz.Questions[0].Single.QuestionType; got != QuestionSingleChoice {
		t.Fatalf("expected single-choice default, got %q", got)
	}
	if got := quiz.Questions[1].Group.ChildQuestions[0].QuestionType; got != QuestionSingleChoice {
		t.Fatalf("expected single-choice default for child, got %q", got)
	}
}
