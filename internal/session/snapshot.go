package session

import (
	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/engine"
)

// Snapshot is what a client needs to render a session. It never carries
// option correctness except through Feedback once it has been revealed.
type Snapshot struct {
	SessionID       string         `json:"sessionId"`
	QuizID          string         `json:"quizId,omitempty"`
	QuizTitle       string         `json:"quizTitle"`
	Mode            domain.Mode    `json:"mode"`
	State           State          `json:"state"`
	CurrentIndex    int            `json:"currentIndex"`
	TotalQuestions  int            `json:"totalQuestions"`
	AnsweredCount   int            `json:"answeredCount"`
	TimeLeftSeconds *int           `json:"timeLeftSeconds,omitempty"`
	Overtime        bool           `json:"overtime,omitempty"`
	ElapsedSeconds  int            `json:"elapsedSeconds"`
	Questions       []QuestionView `json:"questions"`
	Current         *QuestionView  `json:"current,omitempty"` // review mode only
	Feedback        *Feedback      `json:"feedback,omitempty"`
}

// QuestionView is a question as presented to the user.
type QuestionView struct {
	Number       int                 `json:"number"`
	ID           string              `json:"_id"`
	QuestionText string              `json:"questionText"`
	QuestionType domain.QuestionType `json:"questionType"`
	CaseStem     string              `json:"caseStem,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	Difficulty   string              `json:"difficulty,omitempty"`
	Options      []OptionView        `json:"options"`
	Selected     []string            `json:"selected,omitempty"`
}

// OptionView omits IsCorrect and Feedback.
type OptionView struct {
	ID     string `json:"_id"`
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// Feedback is revealed for the current question in review mode.
type Feedback struct {
	QuestionID         string                  `json:"questionId"`
	Correct            bool                    `json:"correct"`
	CorrectOptionIDs   []string                `json:"correctOptionIds"`
	Explanations       []domain.OptionFeedback `json:"explanations"`
	GeneralExplanation string                  `json:"generalExplanation,omitempty"`
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:      s.id,
		QuizID:         s.quiz.ID,
		QuizTitle:      s.quiz.Title,
		Mode:           s.cfg.Mode,
		State:          s.state,
		CurrentIndex:   s.current,
		TotalQuestions: len(s.flat),
		AnsweredCount:  len(s.answers),
		Overtime:       s.overtime,
		ElapsedSeconds: s.elapsedLocked(),
		Questions:      make([]QuestionView, len(s.flat)),
	}
	if s.timeLeft != nil {
		left := *s.timeLeft
		snap.TimeLeftSeconds = &left
	}

	for i, q := range s.flat {
		opts := make([]OptionView, len(q.Options))
		for j, opt := range q.Options {
			opts[j] = OptionView{ID: opt.ID, Letter: engine.Letter(j), Text: opt.Text}
		}
		var selected []string
		if picked := s.answers[q.ID]; len(picked) > 0 {
			selected = append([]string(nil), picked...)
		}
		snap.Questions[i] = QuestionView{
			Number:       i + 1,
			ID:           q.ID,
			QuestionText: q.QuestionText,
			QuestionType: q.QuestionType,
			CaseStem:     q.CaseStem,
			Tags:         q.Tags,
			Difficulty:   q.Difficulty,
			Options:      opts,
			Selected:     selected,
		}
	}

	if s.cfg.Mode == domain.ModeReview && !s.state.Terminal() {
		current := snap.Questions[s.current]
		snap.Current = &current
	}
	if s.cfg.Mode == domain.ModeReview && s.feedbackShown && !s.state.Terminal() {
		q := s.flat[s.current]
		selected := s.answers[q.ID]
		snap.Feedback = &Feedback{
			QuestionID:         q.ID,
			Correct:            engine.IsCorrect(q, selected),
			CorrectOptionIDs:   q.CorrectOptionIDs(),
			Explanations:       engine.VisibleFeedback(q, selected),
			GeneralExplanation: q.GeneralExplanation,
		}
	}
	return snap
}
