package engine

import (
	"fmt"
	"slices"

	"studymed-quiz-service/internal/domain"
)

// RandomSource is the subset of *rand.Rand the shuffles need.
type RandomSource interface {
	Intn(n int) int
}

// ShuffleQuestions returns a uniformly permuted copy of flat.
func ShuffleQuestions(flat []domain.FlatQuestion, rnd RandomSource) []domain.FlatQuestion {
	out := slices.Clone(flat)
	permute(len(out), rnd, func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ShuffleOptions returns a copy of q with its options permuted. True-false
// questions keep their canonical order.
func ShuffleOptions(q domain.FlatQuestion, rnd RandomSource) domain.FlatQuestion {
	q.Options = slices.Clone(q.Options)
	if q.QuestionType == domain.QuestionTrueFalse {
		return q
	}
	permute(len(q.Options), rnd, func(i, j int) { q.Options[i], q.Options[j] = q.Options[j], q.Options[i] })
	return q
}

// ShuffleAllOptions applies ShuffleOptions to every question.
func ShuffleAllOptions(flat []domain.FlatQuestion, rnd RandomSource) []domain.FlatQuestion {
	out := make([]domain.FlatQuestion, len(flat))
	for i, q := range flat {
		out[i] = ShuffleOptions(q, rnd)
	}
	return out
}

// Fisher-Yates.
func permute(n int, rnd RandomSource, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, rnd.Intn(i+1))
	}
}

// OrderOf records the presented order of questions and options.
func OrderOf(flat []domain.FlatQuestion) domain.Presentation {
	order := domain.Presentation{
		QuestionOrder: make([]string, len(flat)),
		OptionOrder:   make(map[string][]string, len(flat)),
	}
	for i, q := range flat {
		order.QuestionOrder[i] = q.ID
		ids := make([]string, len(q.Options))
		for j, opt := range q.Options {
			ids[j] = opt.ID
		}
		order.OptionOrder[q.ID] = ids
	}
	return order
}

// ApplyOrder rearranges a freshly flattened list into a recorded presentation.
// An empty presentation leaves flat untouched.
func ApplyOrder(flat []domain.FlatQuestion, order domain.Presentation) ([]domain.FlatQuestion, error) {
	if len(order.QuestionOrder) == 0 {
		return flat, nil
	}
	if len(order.QuestionOrder) != len(flat) {
		return nil, fmt.Errorf("presentation has %d questions, quiz has %d", len(order.QuestionOrder), len(flat))
	}

	byID := make(map[string]domain.FlatQuestion, len(flat))
	for _, q := range flat {
		byID[q.ID] = q
	}

	out := make([]domain.FlatQuestion, 0, len(flat))
	for _, qid := range order.QuestionOrder {
		q, ok := byID[qid]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, qid)
		}
		delete(byID, qid)

		if optionIDs, ok := order.OptionOrder[qid]; ok {
			reordered, err := reorderOptions(q, optionIDs)
			if err != nil {
				return nil, err
			}
			q.Options = reordered
		}
		out = append(out, q)
	}
	return out, nil
}

func reorderOptions(q domain.FlatQuestion, optionIDs []string) ([]domain.Option, error) {
	if len(optionIDs) != len(q.Options) {
		return nil, fmt.Errorf("question %s: presentation has %d options, question has %d", q.ID, len(optionIDs), len(q.Options))
	}
	out := make([]domain.Option, 0, len(optionIDs))
	for _, oid := range optionIDs {
		opt, ok := q.Option(oid)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrOptionNotFound, q.ID, oid)
		}
		out = append(out, opt)
	}
	return out, nil
}
