// Package session provides the evaluation-session cache. A Session is
// created by the caller for one evaluation pass over one order and handed
// to the engine; it is never stored on a service or shared across requests,
// so concurrent evaluations cannot observe each other's entries.
package session

import "sync"

// Session is a mutexed key/value store scoped to a single evaluation pass.
type Session struct {
	mu      sync.RWMutex
	entries map[string]any
}

// New returns an empty session.
func New() *Session {
	return &Session{entries: make(map[string]any)}
}

// Get returns the cached value for key, if present.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

// Len reports the number of cached entries.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
