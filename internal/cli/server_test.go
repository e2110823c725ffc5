package cli

import (
	"context"
	"slices"
	"testing"

	"studymed-quiz-service/internal/engine"
	"studymed-quiz-service/internal/infra/memory"
	"studymed-quiz-service/internal/study"
)

func TestSampleQuizzesAreValid(t *testing.T) {
	for id, quiz := range sampleQuizzes() {
		if quiz.ID != id {
			t.Fatalf("sample %s has id %q", id, quiz.ID)
		}
		if _, err := engine.Flatten(quiz); err != nil {
			t.Fatalf("sample %s does not flatten: %v", id, err)
		}
	}
}

func TestSampleDifficultiesFollowLadder(t *testing.T) {
	assembler := study.NewAssembler(memory.NewStaticQuizLoader(sampleQuizzes()))
	filters, err := assembler.Filters(context.Background())
	if err != nil {
		t.Fatalf("filters: %v", err)
	}
	if !slices.Equal(filters.Difficulties, study.DifficultyLadder) {
		t.Fatalf("expected every ladder level in order, got %v", filters.Difficulties)
	}
}
