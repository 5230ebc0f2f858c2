// Package credential holds the bearer token of the current session.
//
// How the token is persisted is not this package's concern; it only tracks
// whether a token is present and tells watchers when that changes.
package credential

import "sync"

// Source is read by everything that needs to authenticate.
type Source interface {
	// Token returns the current token and whether one is present.
	Token() (string, bool)
}

// Store is an in-memory, observable Source. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	token    string
	watchers map[int]chan struct{}
	nextID   int
}

// NewStore creates a store holding token, which may be empty.
func NewStore(token string) *Store {
	return &Store{
		token:    token,
		watchers: make(map[int]chan struct{}),
	}
}

// Token implements Source.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the token and notifies watchers.
func (s *Store) Set(token string) {
	s.mu.Lock()
	changed := s.token != token
	s.token = token
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// Clear drops the token, e.g. on logout or after the server rejected it.
func (s *Store) Clear() {
	s.Set("")
}

// Watch returns a channel that receives a signal after every change, and a
// function that stops the subscription. Signals coalesce: a slow watcher sees
// at least one signal after the latest change, then re-reads Token.
func (s *Store) Watch() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Ensure Store implements Source.
var _ Source = (*Store)(nil)
