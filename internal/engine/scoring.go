package engine

import (
	"math"

	"studymed-quiz-service/internal/domain"
)

// NoExplanation is shown for options that carry no feedback.
const NoExplanation = "Không có giải thích cho lựa chọn này."

const (
	percentMax = 100.0
	scaledMax  = 10.0
)

// IsCorrect reports whether selected equals the question's correct option set.
// No partial credit; an empty selection is always wrong.
func IsCorrect(q domain.FlatQuestion, selected []string) bool {
	if len(selected) == 0 {
		return false
	}
	correct := make(map[string]struct{})
	for _, id := range q.CorrectOptionIDs() {
		correct[id] = struct{}{}
	}

	picked := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := correct[id]; !ok {
			return false
		}
		picked[id] = struct{}{}
	}
	return len(picked) == len(correct)
}

// Score computes the aggregate result. Unanswered questions count as incorrect.
// Percent is rounded to two decimals, the 10-point scale to one.
func Score(flat []domain.FlatQuestion, answers domain.AnswerRecord, timeTakenSeconds int) domain.ScoreResult {
	res := domain.ScoreResult{
		TotalQuestions:   len(flat),
		TimeTakenSeconds: timeTakenSeconds,
	}
	for _, q := range flat {
		if IsCorrect(q, answers[q.ID]) {
			res.CorrectCount++
		}
	}
	res.IncorrectCount = res.TotalQuestions - res.CorrectCount
	if res.TotalQuestions > 0 {
		ratio := float64(res.CorrectCount) / float64(res.TotalQuestions)
		res.Percent = round(ratio*percentMax, 2)
		res.Scaled = round(ratio*scaledMax, 1)
	}
	return res
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Annotate builds the review trail in the given order.
func Annotate(flat []domain.FlatQuestion, answers domain.AnswerRecord) []domain.AnnotatedQuestion {
	out := make([]domain.AnnotatedQuestion, 0, len(flat))
	prevStem := ""
	for i, q := range flat {
		selected := answers[q.ID]
		picked := toSet(selected)

		options := make([]domain.AnnotatedOption, len(q.Options))
		for j, opt := range q.Options {
			_, was := picked[opt.ID]
			options[j] = domain.AnnotatedOption{
				ID:          opt.ID,
				Letter:      Letter(j),
				Text:        opt.Text,
				WasSelected: was,
				IsCorrect:   opt.IsCorrect,
				Feedback:    feedbackText(opt),
			}
		}

		out = append(out, domain.AnnotatedQuestion{
			Number:             i + 1,
			ID:                 q.ID,
			QuestionText:       q.QuestionText,
			QuestionType:       q.QuestionType,
			CaseStem:           q.CaseStem,
			ShowCaseStem:       q.CaseStem != "" && q.CaseStem != prevStem,
			Tags:               q.Tags,
			Difficulty:         q.Difficulty,
			GeneralExplanation: q.GeneralExplanation,
			Answered:           len(selected) > 0,
			IsCorrect:          IsCorrect(q, selected),
			Options:            options,
		})
		prevStem = q.CaseStem
	}
	return out
}

// VisibleFeedback returns the explanations practice mode reveals: correct
// options only when the answer is right, correct options plus the wrongly
// selected ones otherwise.
func VisibleFeedback(q domain.FlatQuestion, selected []string) []domain.OptionFeedback {
	right := IsCorrect(q, selected)
	picked := toSet(selected)

	var out []domain.OptionFeedback
	for i, opt := range q.Options {
		_, was := picked[opt.ID]
		if !opt.IsCorrect && (right || !was) {
			continue
		}
		out = append(out, domain.OptionFeedback{
			OptionID:  opt.ID,
			Letter:    Letter(i),
			IsCorrect: opt.IsCorrect,
			Feedback:  feedbackText(opt),
		})
	}
	return out
}

// Letter labels an option position: 0 -> "A".
func Letter(i int) string {
	return string(rune('A' + i))
}

func feedbackText(opt domain.Option) string {
	if opt.Feedback == "" {
		return NoExplanation
	}
	return opt.Feedback
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
