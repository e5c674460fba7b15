package wizard

import (
	"sync"
	"time"

	"companion/internal/domain"
)

// Store keeps wizard sessions in memory.
type Store struct {
	mu sync.Mutex
	m  map[string]*Session
}

func NewStore() *Store {
	return &Store{m: make(map[string]*Session)}
}

func (s *Store) create(sess *Session) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.ID] = sess
	return sess.clone()
}

// Get returns a copy of the session if userID owns it.
func (s *Store) Get(id, userID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok || sess.UserID != userID {
		return Session{}, domain.ErrNotFound
	}
	return sess.clone(), nil
}

// Update runs fn on the live session under the store lock. An error from fn
// is returned as is and UpdatedAt is left alone.
func (s *Store) Update(id, userID string, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok || sess.UserID != userID {
		return Session{}, domain.ErrNotFound
	}
	if err := fn(sess); err != nil {
		return sess.clone(), err
	}
	sess.UpdatedAt = time.Now().UTC()
	return sess.clone(), nil
}

// Prune drops idle sessions that are not mid-operation and returns how many
// were removed.
func (s *Store) Prune(idle time.Duration) int {
	cutoff := time.Now().UTC().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.m {
		if !sess.busy && sess.UpdatedAt.Before(cutoff) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
