package domain

import "time"

// QuestionType controls how answers are collected and scored for a question.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single-choice"
	QuestionMultiSelect  QuestionType = "multi-select"
	QuestionTrueFalse    QuestionType = "true-false"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultiSelect, QuestionTrueFalse:
		return true
	}
	return false
}

// Exclusive reports whether at most one option may be selected.
func (t QuestionType) Exclusive() bool {
	return t == QuestionSingleChoice || t == QuestionTrueFalse
}

// NodeKind discriminates the QuestionNode variants.
type NodeKind string

const (
	NodeSingle NodeKind = "single"
	NodeGroup  NodeKind = "group"
)

// Option is a possible answer for a question.
type Option struct {
	ID        string `json:"_id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Feedback  string `json:"feedback,omitempty"`
}

// Question is a standalone answerable question. Group children use the same shape.
type Question struct {
	ID                 string       `json:"_id"`
	QuestionText       string       `json:"questionText"`
	QuestionType       QuestionType `json:"questionType"`
	Tags               []string     `json:"tags,omitempty"`
	Difficulty         string       `json:"difficulty,omitempty"`
	Options            []Option     `json:"options"`
	GeneralExplanation string       `json:"generalExplanation,omitempty"`
}

// CorrectOptionIDs returns the ids of the options flagged correct, in option order.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// Option looks up an option by id.
func (q Question) Option(optionID string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return Option{}, false
}

// Group is a case study: a shared case stem followed by child questions.
type Group struct {
	ID             string     `json:"_id"`
	CaseStem       string     `json:"caseStem"`
	Tags           []string   `json:"tags,omitempty"`
	Difficulty     string     `json:"difficulty,omitempty"`
	ChildQuestions []Question `json:"childQuestions"`
}

// QuestionNode is either a standalone question or a group. Exactly one of
// Single and Group is set, matching Kind.
type QuestionNode struct {
	Kind   NodeKind
	Single *Question
	Group  *Group
}

// SingleNode wraps a standalone question.
func SingleNode(q Question) QuestionNode {
	return QuestionNode{Kind: NodeSingle, Single: &q}
}

// GroupNode wraps a case-study group.
func GroupNode(g Group) QuestionNode {
	return QuestionNode{Kind: NodeGroup, Group: &g}
}

// Quiz is a quiz document as served by the backend.
type Quiz struct {
	ID          string         `json:"_id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Subject     string         `json:"subject,omitempty"`
	Topic       string         `json:"topic,omitempty"`
	Questions   []QuestionNode `json:"questions"`
}

// IsVirtual reports whether the quiz was synthesized for a study session.
func (q Quiz) IsVirtual() bool {
	return q.ID == ""
}

// FlatQuestion is the answerable unit a session operates on.
type FlatQuestion struct {
	Question
	CaseStem string `json:"caseStem,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
}

// Mode selects presentation and feedback timing for a session.
type Mode string

const (
	ModeReview Mode = "review"
	ModeTest   Mode = "test"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeReview || m == ModeTest
}

// AnswerRecord maps a question id to the set of selected option ids.
// Order within a set carries no meaning.
type AnswerRecord map[string][]string

// Clone returns a deep copy.
func (a AnswerRecord) Clone() AnswerRecord {
	out := make(AnswerRecord, len(a))
	for qid, ids := range a {
		out[qid] = append([]string(nil), ids...)
	}
	return out
}

// ScoreResult is the aggregate outcome of a submitted session.
type ScoreResult struct {
	Percent          float64 `json:"percent"`
	Scaled           float64 `json:"scaled"`
	CorrectCount     int     `json:"correctCount"`
	IncorrectCount   int     `json:"incorrectCount"`
	TotalQuestions   int     `json:"totalQuestions"`
	TimeTakenSeconds int     `json:"timeTakenSeconds"`
}

// Presentation records the order questions and options were shown in, by id.
type Presentation struct {
	QuestionOrder []string            `json:"questionOrder"`
	OptionOrder   map[string][]string `json:"optionOrder"`
}

// Handoff is what a submitted session passes to the review surface.
type Handoff struct {
	QuizData    Quiz         `json:"quizData"`
	UserAnswers AnswerRecord `json:"userAnswers"`
	TimeTaken   int          `json:"timeTaken"`
	Mode        Mode         `json:"mode"`
	Order       Presentation `json:"order"`
	TimeUp      bool         `json:"timeUp"`
}

// Result is a scored submission.
type Result struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	UserID      string      `json:"userId"`
	QuizID      string      `json:"quizId,omitempty"`
	QuizTitle   string      `json:"quizTitle"`
	Score       ScoreResult `json:"score"`
	Handoff     Handoff     `json:"handoff"`
	SubmittedAt time.Time   `json:"submittedAt"`
}

// AnnotatedOption is an option prepared for review rendering.
type AnnotatedOption struct {
	ID          string `json:"_id"`
	Letter      string `json:"letter"`
	Text        string `json:"text"`
	WasSelected bool   `json:"wasSelected"`
	IsCorrect   bool   `json:"isCorrect"`
	Feedback    string `json:"feedback"`
}

// AnnotatedQuestion is one entry of the review trail.
type AnnotatedQuestion struct {
	Number             int               `json:"number"`
	ID                 string            `json:"_id"`
	QuestionText       string            `json:"questionText"`
	QuestionType       QuestionType      `json:"questionType"`
	CaseStem           string            `json:"caseStem,omitempty"`
	ShowCaseStem       bool              `json:"showCaseStem"`
	Tags               []string          `json:"tags,omitempty"`
	Difficulty         string            `json:"difficulty,omitempty"`
	GeneralExplanation string            `json:"generalExplanation,omitempty"`
	Answered           bool              `json:"answered"`
	IsCorrect          bool              `json:"isCorrect"`
	Options            []AnnotatedOption `json:"options"`
}

// OptionFeedback is an explanation shown for one option.
type OptionFeedback struct {
	OptionID  string `json:"optionId"`
	Letter    string `json:"letter"`
	IsCorrect bool   `json:"isCorrect"`
	Feedback  string `json:"feedback"`
}

// GuestUserID identifies callers when no token verification is configured.
const GuestUserID = "guest"

// TagFilterMode controls how requested tags are matched.
type TagFilterMode string

const (
	TagFilterAny TagFilterMode = "any"
	TagFilterAll TagFilterMode = "all"
)

// StudyRequest describes a study-by-tag virtual quiz.
type StudyRequest struct {
	Tags              []string      `json:"tags"`
	Difficulties      []string      `json:"difficulties"`
	TagFilterMode     TagFilterMode `json:"tagFilterMode"`
	NumberOfQuestions int           `json:"numberOfQuestions"`
}

// StudyFilters lists the tags and difficulties a study session can filter on.
type StudyFilters struct {
	Tags         []string `json:"tags"`
	Difficulties []string `json:"difficulties"`
}
