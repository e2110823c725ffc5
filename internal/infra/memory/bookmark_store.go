package memory

import (
	"context"
	"sort"
	"sync"
)

// BookmarkStore keeps per-user bookmarked question ids.
type BookmarkStore struct {
	mu    sync.Mutex
	marks map[string]map[string]struct{}
}

func NewBookmarkStore() *BookmarkStore {
	return &BookmarkStore{marks: make(map[string]map[string]struct{})}
}

// ToggleBookmark flips the bookmark and reports the new state.
func (s *BookmarkStore) ToggleBookmark(_ context.Context, userID, questionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.marks[userID]
	if !ok {
		set = make(map[string]struct{})
		s.marks[userID] = set
	}
	if _, marked := set[questionID]; marked {
		delete(set, questionID)
		return false, nil
	}
	set[questionID] = struct{}{}
	return true, nil
}

// Bookmarks lists a user's bookmarked question ids in sorted order.
func (s *BookmarkStore) Bookmarks(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.marks[userID]))
	for id := range s.marks[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
