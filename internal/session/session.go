// Package session remembers, per user, which expense record was touched most
// recently, so follow-up phrases like "刪除剛剛那筆" can resolve without an
// explicit record number.
package session

import "sync"

// Store is a concurrency-safe map of user id to last-touched expense id.
// It is a hint, not a source of truth: callers must verify the record still
// exists before acting on it.
type Store struct {
	mu   sync.RWMutex
	last map[string]int64
}

func NewStore() *Store {
	return &Store{last: make(map[string]int64)}
}

// Set records the expense the user just created or modified.
func (s *Store) Set(userID string, expenseID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[userID] = expenseID
}

// Get returns the remembered expense id, or false when nothing is remembered.
func (s *Store) Get(userID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.last[userID]
	return id, ok
}

// Invalidate forgets the user's remembered record. Called after deletes and
// full clears so stale hints never resolve to the wrong row.
func (s *Store) Invalidate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, userID)
}
