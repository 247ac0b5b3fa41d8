// Package auth holds the client-side view of the authenticated session.
//
// Token issuance and refresh belong to the authentication service; this package
// only mirrors who is logged in and tells subscribers when that changes.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned when a token carries no usable user id.
var ErrNoSubject = errors.New("token has no subject")

// Identity is the authenticated user and the opaque credential used by the transport.
type Identity struct {
	UserID string
	Token  string
}

// Source exposes the current identity and its transitions.
type Source interface {
	Current() (Identity, bool)
	// Subscribe calls fn with the new identity on login and nil on logout.
	Subscribe(fn func(*Identity)) (unsubscribe func())
}

// Store is an in-process Source driven by explicit Login/Logout calls.
type Store struct {
	mu       sync.Mutex
	current  *Identity
	nextID   int
	handlers map[int]func(*Identity)
}

// NewStore builds an empty, logged-out store.
func NewStore() *Store {
	return &Store{handlers: make(map[int]func(*Identity))}
}

// Current returns the logged-in identity.
func (s *Store) Current() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Identity{}, false
	}
	return *s.current, true
}

// Login records id and notifies subscribers.
func (s *Store) Login(id Identity) error {
	id.UserID = strings.TrimSpace(id.UserID)
	if id.UserID == "" {
		return errors.New("user id is required")
	}
	s.mu.Lock()
	s.current = &id
	handlers := s.snapshot()
	s.mu.Unlock()

	for _, fn := range handlers {
		next := id
		fn(&next)
	}
	return nil
}

// Logout clears the identity and notifies subscribers. Logging out twice is a no-op.
func (s *Store) Logout() {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	s.current = nil
	handlers := s.snapshot()
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(nil)
	}
}

// Subscribe registers fn for identity transitions.
func (s *Store) Subscribe(fn func(*Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) snapshot() []func(*Identity) {
	out := make([]func(*Identity), 0, len(s.handlers))
	for _, fn := range s.handlers {
		out = append(out, fn)
	}
	return out
}

// IdentityFromToken reads the user id from a JWT without verifying it.
// Verification is the backend's job; the client only needs the subject.
func IdentityFromToken(token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, errors.New("token is required")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		if raw, ok := claims["user_id"]; ok {
			subject = strings.TrimSpace(fmt.Sprint(raw))
		}
	}
	if subject == "" {
		return Identity{}, ErrNoSubject
	}
	return Identity{UserID: subject, Token: token}, nil
}
