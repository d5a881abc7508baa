// Package session holds the authenticated identity of the current user and
// persists it across process restarts through an injected adapter.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// User is the profile returned by the backend at login/registration.
type User struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Session is the credential plus the user it belongs to. It is always
// replaced as a whole.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Persistence is a durable key-value adapter for the single session record.
// Load returns (nil, nil) when nothing is stored.
type Persistence interface {
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}

// Store owns the current Session. All writers go through SetSession and
// ClearSession.
type Store struct {
	mu         sync.RWMutex
	current    *Session
	generation uint64
	persist    Persistence
}

// Open creates a Store backed by p and rehydrates it. A corrupt record is
// cleared and reported; the store is still usable.
func Open(p Persistence) (*Store, error) {
	if p == nil {
		p = NewMemoryPersistence()
	}
	s := &Store{persist: p}
	if err := s.Reload(); err != nil {
		_ = p.Clear()
		return s, err
	}
	return s, nil
}

// Reload replaces the in-memory session with what persistence holds. Used at
// start and when another process changed the stored record.
func (s *Store) Reload() error {
	loaded, err := s.persist.Load()
	if err != nil {
		s.mu.Lock()
		s.current = nil
		s.generation++
		s.mu.Unlock()
		return fmt.Errorf("load session: %w", err)
	}
	if loaded != nil && loaded.Token == "" {
		loaded = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sameSession(s.current, loaded) {
		return nil
	}
	s.current = loaded
	s.generation++
	return nil
}

// SetSession stores a new session, replacing token and user together.
func (s *Store) SetSession(token string, user User) error {
	if token == "" {
		return errors.New("session token cannot be empty")
	}
	next := &Session{Token: token, User: user}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist.Save(next); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.current = next
	s.generation++
	return nil
}

// Session returns a copy of the current session.
func (s *Store) Session() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Token returns the current token or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// ClearSession drops the session in memory and in persistence. The in-memory
// state is cleared even if persistence fails.
func (s *Store) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.generation++
	if err := s.persist.Clear(); err != nil {
		return fmt.Errorf("clear persisted session: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a non-empty token is present.
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Generation changes on every write. Capture it before a protected request and
// pass it to Current afterwards to find out whether the result is stale.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Current reports whether gen is still the live generation and a session exists.
func (s *Store) Current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen && s.current != nil && s.current.Token != ""
}

func sameSession(a, b *Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
