// Package study assembles virtual quizzes from the question pool by tag and
// difficulty.
package study

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/engine"
)

// Title is the title of every assembled quiz.
const Title = "Ôn tập theo chủ đề"

// DefaultQuestionCount applies when a request does not ask for a size.
const DefaultQuestionCount = 10

// DifficultyLadder is the canonical difficulty order, easiest first.
var DifficultyLadder = []string{"Nhận biết", "Thông hiểu", "Vận dụng", "Vận dụng cao"}

// QuizLister lists every quiz in the pool.
type QuizLister interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
}

// Assembler implements app.StudyAssembler over a QuizLister.
type Assembler struct {
	lister QuizLister

	mu  sync.Mutex
	rnd engine.RandomSource
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithRandom replaces the random source used to pick candidates.
func WithRandom(rnd engine.RandomSource) Option { return func(a *Assembler) { a.rnd = rnd } }

func NewAssembler(lister QuizLister, opts ...Option) *Assembler {
	a := &Assembler{lister: lister}
	for _, opt := range opts {
		opt(a)
	}
	if a.rnd == nil {
		a.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return a
}

// Assemble picks random matching nodes until the flattened count would exceed
// the requested number. Groups are never split.
func (a *Assembler) Assemble(ctx context.Context, req domain.StudyRequest) (domain.Quiz, error) {
	quizzes, err := a.lister.ListQuizzes(ctx)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("list quizzes: %w", err)
	}

	limit := req.NumberOfQuestions
	if limit <= 0 {
		limit = DefaultQuestionCount
	}

	seen := make(map[string]struct{})
	var candidates []domain.QuestionNode
	for _, quiz := range quizzes {
		for _, node := range quiz.Questions {
			if !matches(node, req) || duplicate(node, seen) {
				continue
			}
			candidates = append(candidates, node)
		}
	}

	a.mu.Lock()
	for i := len(candidates) - 1; i > 0; i-- {
		j := a.rnd.Intn(i + 1)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	a.mu.Unlock()

	picked := make([]domain.QuestionNode, 0, limit)
	count := 0
	for _, node := range candidates {
		n := questionCount(node)
		if n == 0 || count+n > limit {
			continue
		}
		picked = append(picked, node)
		count += n
		if count == limit {
			break
		}
	}
	if len(picked) == 0 {
		return domain.Quiz{}, fmt.Errorf("%w: nothing matches the study filters", domain.ErrNoQuestions)
	}
	return domain.Quiz{Title: Title, Questions: picked}, nil
}

// Filters lists the distinct tags and difficulties present in the pool.
func (a *Assembler) Filters(ctx context.Context) (domain.StudyFilters, error) {
	quizzes, err := a.lister.ListQuizzes(ctx)
	if err != nil {
		return domain.StudyFilters{}, fmt.Errorf("list quizzes: %w", err)
	}

	tags := make(map[string]struct{})
	difficulties := make(map[string]struct{})
	for _, quiz := range quizzes {
		for _, node := range quiz.Questions {
			for _, tag := range nodeTags(node) {
				tags[tag] = struct{}{}
			}
			for _, d := range nodeDifficulties(node) {
				difficulties[d] = struct{}{}
			}
		}
	}

	out := domain.StudyFilters{Tags: make([]string, 0, len(tags)), Difficulties: make([]string, 0, len(difficulties))}
	for tag := range tags {
		out.Tags = append(out.Tags, tag)
	}
	sort.Strings(out.Tags)
	for d := range difficulties {
		out.Difficulties = append(out.Difficulties, d)
	}
	SortDifficulties(out.Difficulties)
	return out, nil
}

// SortDifficulties orders values by the ladder, unknown values last and alphabetically.
func SortDifficulties(values []string) {
	rank := func(v string) int {
		if i := slices.Index(DifficultyLadder, v); i >= 0 {
			return i
		}
		return len(DifficultyLadder)
	}
	sort.Slice(values, func(i, j int) bool {
		ri, rj := rank(values[i]), rank(values[j])
		if ri != rj {
			return ri < rj
		}
		return values[i] < values[j]
	})
}

func matches(node domain.QuestionNode, req domain.StudyRequest) bool {
	if len(req.Difficulties) > 0 && !overlaps(nodeDifficulties(node), req.Difficulties) {
		return false
	}
	if len(req.Tags) == 0 {
		return true
	}
	tags := nodeTags(node)
	if req.TagFilterMode == domain.TagFilterAll {
		for _, want := range req.Tags {
			if !slices.Contains(tags, want) {
				return false
			}
		}
		return true
	}
	return overlaps(tags, req.Tags)
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

// nodeTags is the union of a node's own tags and its children's.
func nodeTags(node domain.QuestionNode) []string {
	switch {
	case node.Single != nil:
		return node.Single.Tags
	case node.Group != nil:
		tags := slices.Clone(node.Group.Tags)
		for _, child := range node.Group.ChildQuestions {
			tags = append(tags, child.Tags...)
		}
		return tags
	}
	return nil
}

func nodeDifficulties(node domain.QuestionNode) []string {
	var out []string
	add := func(d string) {
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	switch {
	case node.Single != nil:
		add(node.Single.Difficulty)
	case node.Group != nil:
		add(node.Group.Difficulty)
		for _, child := range node.Group.ChildQuestions {
			add(child.Difficulty)
		}
	}
	return out
}

func questionCount(node domain.QuestionNode) int {
	switch {
	case node.Single != nil:
		return 1
	case node.Group != nil:
		return len(node.Group.ChildQuestions)
	}
	return 0
}

// duplicate reports whether any question in node was already picked up from
// another quiz, recording the node's ids otherwise.
func duplicate(node domain.QuestionNode, seen map[string]struct{}) bool {
	var ids []string
	switch {
	case node.Single != nil:
		ids = []string{node.Single.ID}
	case node.Group != nil:
		for _, child := range node.Group.ChildQuestions {
			ids = append(ids, child.ID)
		}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return false
}
