package settings

import (
	"sync"
	"time"
)

// Store holds at most one Settings value shared by the control loops.
// The poller is the only writer. Readers get a copy and never hold the
// lock across a sleep or I/O call.
type Store struct {
	mu      sync.RWMutex
	current Settings
	valid   bool
	updated time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Get returns a snapshot of the current settings and whether one exists.
func (s *Store) Get() (Settings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.valid
}

// Set replaces the stored settings.
func (s *Store) Set(v Settings) {
	s.SetAt(v, time.Now())
}

// SetAt replaces the stored settings and records at as the update time.
func (s *Store) SetAt(v Settings, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = v
	s.valid = true
	s.updated = at
}

// Updated returns when the settings were last replaced, zero if never.
func (s *Store) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
