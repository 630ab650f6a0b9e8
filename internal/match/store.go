package match

import (
	"sync"
)

// Store is the process-wide arena of live and finished matches. Lookups touch
// only the map mutex, never any match's own lock.
type Store struct {
	mu      sync.Mutex
	matches map[string]*Match
}

func NewStore() *Store {
	return &Store{
		matches: make(map[string]*Match),
	}
}

func (s *Store) Add(m *Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
}

func (s *Store) Get(id string) (*Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, exists := s.matches[id]
	return m, exists
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, id)
}
