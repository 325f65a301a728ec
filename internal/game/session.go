package game

import (
	"sync"

	"github.com/stellarlinkco/wabot/internal/memory"
)

// Session is the active game for one conversation. History is scoped to the
// game and never mixes with the conversation's chat history.
type Session struct {
	Kind    Kind
	History []memory.Turn

	// Truths only.
	Statements []string
	LieIndex   int
}

func (s Session) clone() Session {
	out := s
	out.History = append([]memory.Turn(nil), s.History...)
	out.Statements = append([]string(nil), s.Statements...)
	return out
}

// Store holds at most one Session per conversation key.
type Store struct {
	mu       sync.Mutex
	limit    int
	sessions map[string]*Session
}

// NewStore returns a Store whose per-session histories keep at most limit turns.
func NewStore(limit int) *Store {
	return &Store{
		limit:    limit,
		sessions: make(map[string]*Session),
	}
}

func (s *Store) Get(key string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	return ok
}

// Start replaces any session for key with sess.
func (s *Store) Start(key string, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := sess.clone()
	c.History = memory.Trim(c.History, s.limit)
	s.sessions[key] = &c
}

// End deletes the session for key and reports whether one existed.
func (s *Store) End(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return false
	}
	delete(s.sessions, key)
	return true
}

// AppendTurns records turns in the session's own history. It is a no-op when
// the session has ended in the meantime.
func (s *Store) AppendTurns(key string, turns ...memory.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return
	}
	sess.History = memory.Trim(append(sess.History, turns...), s.limit)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
