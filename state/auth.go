// Package state holds the per-browser-session page state of the frontend:
// the identity mirror, the study state machine, the card browser and the
// admin role drafts. Nothing here performs I/O except through the small
// interfaces the callers pass in.
package state

import (
	"context"
	"sync"

	"flashdeck/models"
)

// Policy decides what happens when the startup check finds no identity
type Policy string

const (
	// PolicyLoginOnly leaves the visitor anonymous until they log in
	PolicyLoginOnly Policy = "login_only"
	// PolicyEagerSession asks the backend for an anonymous session right away
	PolicyEagerSession Policy = "eager_session"
)

// IdentitySource is the slice of the backend client the auth store needs
type IdentitySource interface {
	WhoAmI(ctx context.Context) (*models.Identity, error)
	StartSession(ctx context.Context) error
}

// AuthStore mirrors the backend's view of who is logged in for one browser
// session. Identity is nil when nobody is, or when the check could not tell.
type AuthStore struct {
	mu       sync.Mutex
	identity *models.Identity
	loading  bool
	checked   bool
}

// NewAuthStore returns a store that is loading until Bootstrap or Set runs
func NewAuthStore() *AuthStore {
	return &AuthStore{loading: true}
}

// Identity returns a copy of the current identity, or nil
func (s *AuthStore) Identity() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Clone()
}

// Loading is true until the initial check has resolved
func (s *AuthStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Set replaces the identity (login stores the returned user, logout passes nil).
// It also ends the loading phase and suppresses any later check.
func (s *AuthStore) Set(identity *models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity.Clone()
	s.loading = false
	s.checked = true
}

// Bootstrap runs the one-time identity check. Every failure mode collapses
// into "no identity"; there is no retry. It returns the resolved identity.
func (s *AuthStore) Bootstrap(ctx context.Context, source IdentitySource, policy Policy) *models.Identity {
	s.mu.Lock()
	if s.checked {
		id := s.identity.Clone()
		s.mu.Unlock()
		return id
	}
	// Claimed before the network call so concurrent requests do not check twice.
	s.checked = true
	s.mu.Unlock()

	identity, err := source.WhoAmI(ctx)
	if err != nil {
		identity = nil
	}

	if identity == nil && policy == PolicyEagerSession {
		// The anonymous session only sets a backend cookie; it never yields an identity.
		_ = source.StartSession(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// a login that finished while the check was in flight wins
	if s.loading {
		s.identity = identity.Clone()
		s.loading = false
	}
	return s.identity.Clone()
}
