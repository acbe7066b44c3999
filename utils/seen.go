package utils

import "sync"

// SeenSet remembers keys already handled in a run. Safe for concurrent use.
type SeenSet[K comparable] struct {
	mu   sync.Mutex
	keys map[K]struct{}
}

func NewSeenSet[K comparable]() *SeenSet[K] {
	return &SeenSet[K]{keys: make(map[K]struct{})}
}

// Mark records key and reports whether it was new
func (s *SeenSet[K]) Mark(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *SeenSet[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
