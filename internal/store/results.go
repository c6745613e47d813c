package store

import (
	"sync"

	"github.com/manash/stitchgen/pkg/models"
)

// Results is the in-memory, append-only list of generated patterns for the
// current process. All returns newest first.
type Results struct {
	mu      sync.RWMutex
	results []models.GenerationResult
}

func New() *Results {
	return &Results{}
}

// Append stores a copy of result. Later changes to the caller's Filters map
// do not reach the stored entry.
func (s *Results) Append(result models.GenerationResult) {
	result.Filters = result.Filters.Clone()
	s.mu.Lock()
	s.results = append(s.results, result)
	s.mu.Unlock()
}

func (s *Results) Clear() {
	s.mu.Lock()
	s.results = nil
	s.mu.Unlock()
}

// All returns a copy ordered most recent first.
func (s *Results) All() []models.GenerationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.GenerationResult, len(s.results))
	for i, r := range s.results {
		out[len(s.results)-1-i] = detach(r)
	}
	return out
}

func (s *Results) Get(id string) (models.GenerationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].ID == id {
			return detach(s.results[i]), true
		}
	}
	return models.GenerationResult{}, false
}

func (s *Results) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

func detach(r models.GenerationResult) models.GenerationResult {
	r.Filters = r.Filters.Clone()
	return r
}
