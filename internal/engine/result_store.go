package engine

import (
	"sync"

	"github.com/segscope/backend/internal/search"
)

// ResultStore holds the outcome of the most recent successful query.
// Writes replace the value wholesale; readers get a copy.
type ResultStore struct {
	mu     sync.RWMutex
	result *search.SimilarityResult
}

// Get returns a copy of the stored result, or false when there is none
func (s *ResultStore) Get() (*search.SimilarityResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil, false
	}
	return s.result.Clone(), true
}

func (s *ResultStore) set(r *search.SimilarityResult) {
	s.mu.Lock()
	s.result = r.Clone()
	s.mu.Unlock()
}

func (s *ResultStore) clear() {
	s.mu.Lock()
	s.result = nil
	s.mu.Unlock()
}
