package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type singleWire struct {
	Type NodeKind `json:"type"`
	*Question
}

type groupWire struct {
	Type NodeKind `json:"type"`
	*Group
}

// MarshalJSON writes the node with its "type" discriminator.
func (n QuestionNode) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case NodeSingle:
		if n.Single == nil {
			return nil, &MalformedQuestionError{Reason: "single node without question"}
		}
		return json.Marshal(singleWire{Type: NodeSingle, Question: n.Single})
	case NodeGroup:
		if n.Group == nil {
			return nil, &MalformedQuestionError{Reason: "group node without group"}
		}
		return json.Marshal(groupWire{Type: NodeGroup, Group: n.Group})
	}
	return nil, &MalformedQuestionError{Reason: fmt.Sprintf("unknown node type %q", n.Kind)}
}

// UnmarshalJSON reads a node. Nodes without a "type" are legacy standalone
// questions unless they carry childQuestions.
func (n *QuestionNode) UnmarshalJSON(data []byte) error {
	node, err := decodeNode(0, data)
	if err != nil {
		return err
	}
	*n = node
	return nil
}

// UnmarshalJSON decodes a quiz, reporting malformed nodes with their position.
func (q *Quiz) UnmarshalJSON(data []byte) error {
	type quizFields Quiz
	var wire struct {
		quizFields
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	quiz := Quiz(wire.quizFields)
	quiz.Questions = make([]QuestionNode, 0, len(wire.Questions))
	for i, raw := range wire.Questions {
		node, err := decodeNode(i, raw)
		if err != nil {
			return err
		}
		quiz.Questions = append(quiz.Questions, node)
	}
	*q = quiz
	return nil
}

type nodeProbe struct {
	ID             string          `json:"_id"`
	Type           NodeKind        `json:"type"`
	ChildQuestions json.RawMessage `json:"childQuestions"`
}

func (p nodeProbe) hasChildren() bool {
	trimmed := bytes.TrimSpace(p.ChildQuestions)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func decodeNode(position int, data []byte) (QuestionNode, error) {
	var probe nodeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return QuestionNode{}, err
	}

	kind := probe.Type
	if kind == "" {
		kind = NodeSingle
		if probe.hasChildren() {
			kind = NodeGroup
		}
	}

	switch kind {
	case NodeSingle:
		var q Question
		if err := json.Unmarshal(data, &q); err != nil {
			return QuestionNode{}, err
		}
		return SingleNode(q), nil
	case NodeGroup:
		var children struct {
			ChildQuestions []nodeProbe `json:"childQuestions"`
		}
		if err := json.Unmarshal(data, &children); err != nil {
			return QuestionNode{}, err
		}
		for _, child := range children.ChildQuestions {
			if child.Type == NodeGroup || child.hasChildren() {
				return QuestionNode{}, &MalformedQuestionError{
					Position:   position,
					QuestionID: probe.ID,
					Reason:     "groups cannot contain groups",
				}
			}
		}
		var g Group
		if err := json.Unmarshal(data, &g); err != nil {
			return QuestionNode{}, err
		}
		return GroupNode(g), nil
	}
	return QuestionNode{}, &MalformedQuestionError{
		Position:   position,
		QuestionID: probe.ID,
		Reason:     fmt.Sprintf("unknown node type %q", kind),
	}
}

// UnmarshalJSON treats a missing questionType as single-choice.
func (q *Question) UnmarshalJSON(data []byte) error {
	type questionFields Question
	var f questionFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.QuestionType == "" {
		f.QuestionType = QuestionSingleChoice
	}
	*q = Question(f)
	return nil
}
