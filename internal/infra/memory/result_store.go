package memory

import (
	"context"
	"sync"
	"time"

	"studymed-quiz-service/internal/domain"
)

// ResultStore keeps scored results in memory. A zero ttl keeps them forever.
type ResultStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	results map[string]storedResult
}

type storedResult struct {
	result    domain.Result
	expiresAt time.Time
}

func NewResultStore(ttl time.Duration) *ResultStore {
	return &ResultStore{
		ttl:     ttl,
		clock:   time.Now,
		results: make(map[string]storedResult),
	}
}

func (s *ResultStore) SaveResult(_ context.Context, result domain.Result) error {
	entry := storedResult{result: result}
	if s.ttl > 0 {
		entry.expiresAt = s.clock().Add(s.ttl)
	}
	s.mu.Lock()
	s.results[result.ID] = entry
	s.mu.Unlock()
	return nil
}

func (s *ResultStore) GetResult(_ context.Context, resultID string) (domain.Result, error) {
	s.mu.RLock()
	entry, ok := s.results[resultID]
	s.mu.RUnlock()
	if !ok {
		return domain.Result{}, domain.ErrResultNotFound
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock()) {
		s.mu.Lock()
		delete(s.results, resultID)
		s.mu.Unlock()
		return domain.Result{}, domain.ErrResultNotFound
	}
	return entry.result, nil
}
