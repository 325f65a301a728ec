package memory

import "sync"

// Store keeps a bounded chat history per conversation key. Histories are
// created lazily and live for the lifetime of the process.
type Store struct {
	mu        sync.Mutex
	limit     int
	histories map[string][]Turn
}

func NewStore(limit int) *Store {
	return &Store{
		limit:     limit,
		histories: make(map[string][]Turn),
	}
}

func (s *Store) Limit() int {
	return s.limit
}

// Known reports whether key has been seen before, even with an empty history.
func (s *Store) Known(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.histories[key]
	return ok
}

// Touch registers key with an empty history. It reports whether key was new.
func (s *Store) Touch(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[key]; ok {
		return false
	}
	s.histories[key] = []Turn{}
	return true
}

// History returns a copy of the turns recorded for key, oldest first.
func (s *Store) History(key string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.histories[key]
	out := make([]Turn, len(h))
	copy(out, h)
	return out
}

// Append adds turns for key in order and applies the sliding window.
func (s *Store) Append(key string, turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.histories[key], turns...)
	s.histories[key] = Trim(h, s.limit)
}

// Len returns the number of turns currently kept for key.
func (s *Store) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories[key])
}
