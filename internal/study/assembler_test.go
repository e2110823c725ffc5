package study

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/engine"
)

type listerFunc func(ctx context.Context) ([]domain.Quiz, error)

func (f listerFunc) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) { return f(ctx) }

func staticPool(quizzes ...domain.Quiz) QuizLister {
	return listerFunc(func(context.Context) ([]domain.Quiz, error) { return quizzes, nil })
}

func q(id, difficulty string, tags ...string) domain.Question {
	return domain.Question{
		ID:           id,
		QuestionText: id,
		QuestionType: domain.QuestionSingleChoice,
		Tags:         tags,
		Difficulty:   difficulty,
		Options:      []domain.Option{{ID: id + "-a", IsCorrect: true}, {ID: id + "-b"}},
	}
}

func pool() QuizLister {
	return staticPool(
		domain.Quiz{ID: "cardio", Questions: []domain.QuestionNode{
			domain.SingleNode(q("c1", "Nhận biết", "tim")),
			domain.SingleNode(q("c2", "Vận dụng", "tim", "điện tim")),
			domain.GroupNode(domain.Group{
				ID:       "case-1",
				CaseStem: "Bệnh nhân nam 60 tuổi đau ngực",
				Tags:     []string{"ca lâm sàng"},
				ChildQuestions: []domain.Question{
					q("c3", "Vận dụng cao", "tim"),
					q("c4", "Vận dụng cao", "điện tim"),
				},
			}),
		}},
		domain.Quiz{ID: "resp", Questions: []domain.QuestionNode{
			domain.SingleNode(q("r1", "Thông hiểu", "hô hấp")),
			domain.SingleNode(q("r2", "Khó", "hô hấp")),
			domain.SingleNode(q("c1", "Nhận biết", "tim")),
		}},
	)
}

func newAssembler(lister QuizLister) *Assembler {
	return NewAssembler(lister, WithRandom(rand.New(rand.NewSource(3))))
}

func flatIDs(t *testing.T, quiz domain.Quiz) []string {
	t.Helper()
	flat, err := engine.Flatten(quiz)
	require.NoError(t, err)
	out := make([]string, len(flat))
	for i, fq := range flat {
		out[i] = fq.ID
	}
	return out
}

func TestAssembleAnyTag(t *testing.T) {
	quiz, err := newAssembler(pool()).Assemble(context.Background(), domain.StudyRequest{
		Tags:              []string{"tim"},
		TagFilterMode:     domain.TagFilterAny,
		NumberOfQuestions: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, Title, quiz.Title)
	assert.True(t, quiz.IsVirtual())
	assert.ElementsMatch(t, []string{"c1", "c2", "c3", "c4"}, flatIDs(t, quiz), "duplicate c1 from the second quiz is skipped")
}

func TestAssembleAllTagsMatchesGroupChildren(t *testing.T) {
	quiz, err := newAssembler(pool()).Assemble(context.Background(), domain.StudyRequest{
		Tags:          []string{"tim", "điện tim"},
		TagFilterMode: domain.TagFilterAll,
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"c2", "c3", "c4"}, flatIDs(t, quiz))
	for _, node := range quiz.Questions {
		if node.Kind == domain.NodeGroup {
			assert.Len(t, node.Group.ChildQuestions, 2, "groups stay intact")
		}
	}
}

func TestAssembleDifficultyFilter(t *testing.T) {
	quiz, err := newAssembler(pool()).Assemble(context.Background(), domain.StudyRequest{
		Difficulties: []string{"Thông hiểu", "Khó"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, flatIDs(t, quiz))
}

func TestAssembleRespectsLimit(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		a := NewAssembler(pool(), WithRandom(rand.New(rand.NewSource(seed))))
		quiz, err := a.Assemble(context.Background(), domain.StudyRequest{NumberOfQuestions: 3})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(flatIDs(t, quiz)), 3)
	}
}

func TestAssembleNoMatch(t *testing.T) {
	_, err := newAssembler(pool()).Assemble(context.Background(), domain.StudyRequest{Tags: []string{"thận"}})
	assert.ErrorIs(t, err, domain.ErrNoQuestions)

	_, err = newAssembler(listerFunc(func(context.Context) ([]domain.Quiz, error) {
		return nil, errors.New("db down")
	})).Assemble(context.Background(), domain.StudyRequest{})
	assert.ErrorContains(t, err, "db down")
}

func TestFilters(t *testing.T) {
	filters, err := newAssembler(pool()).Filters(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ca lâm sàng", "hô hấp", "tim", "điện tim"}, filters.Tags)
	assert.Equal(t, []string{"Nhận biết", "Thông hiểu", "Vận dụng", "Vận dụng cao", "Khó"}, filters.Difficulties)
}
