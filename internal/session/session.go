// Package session tracks who the terminal customer is: a registered user,
// a guest, or nobody yet.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/thomas/lilyan-terminal-go/internal/api"
	"github.com/thomas/lilyan-terminal-go/internal/storage"
)

// ErrNotAuthenticated is returned by operations that need an identity.
var ErrNotAuthenticated = errors.New("not signed in")

// Backend is the subset of the API client used for authentication.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (*api.AuthResponse, error)
	GuestLogin(ctx context.Context) (*api.AuthResponse, error)
	Register(ctx context.Context, reg api.Registration) (*api.AuthResponse, error)
	Logout(ctx context.Context) error
	SetToken(token string)
}

// Session is the persisted identity of one terminal session.
type Session struct {
	backend Backend
	store   storage.Store
	logger  *log.Logger

	mu      sync.RWMutex
	user    *api.User
	isGuest bool
	token   string
}

// New restores any stored identity and installs its token on backend.
func New(backend Backend, store storage.Store, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{backend: backend, store: store, logger: logger.WithPrefix("session")}

	var user api.User
	if err := storage.Load(store, storage.KeyUser, &user); err != nil || user.ID == "" {
		return s
	}
	s.user = &user
	_ = storage.Load(store, storage.KeyIsGuest, &s.isGuest)
	_ = storage.Load(store, storage.KeyToken, &s.token)
	s.installToken()
	return s
}

// User returns the current user, or nil.
func (s *Session) User() *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsGuest reports whether the identity is a guest.
func (s *Session) IsGuest() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.isGuest
}

// Token returns the bearer token, "" for guests and anonymous sessions.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether any identity, guest included, is present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// UserID returns the identity sent with payments; "guest" when absent.
func (s *Session) UserID() string {
	if u := s.User(); u != nil && u.ID != "" {
		return u.ID
	}
	return "guest"
}

// Login signs in a registered user.
func (s *Session) Login(ctx context.Context, email, password string) error {
	resp, err := s.backend.Login(ctx, api.Credentials{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	s.set(resp.Data.User, false, resp.Data.Token)
	s.logger.Info("signed in", "user", resp.Data.User.ID)
	return nil
}

// GuestLogin opens a guest identity. Guests authenticate by cookie only.
func (s *Session) GuestLogin(ctx context.Context) error {
	resp, err := s.backend.GuestLogin(ctx)
	if err != nil {
		return fmt.Errorf("guest login: %w", err)
	}
	s.set(resp.Data.User, true, "")
	s.logger.Info("guest session", "user", resp.Data.User.ID)
	return nil
}

// Register creates an account. A current guest is upgraded in place.
func (s *Session) Register(ctx context.Context, reg api.Registration) error {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	reg.MergeCart = s.IsGuest()

	resp, err := s.backend.Register(ctx, reg)
	if err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	s.set(resp.Data.User, false, resp.Data.Token)
	return nil
}

// Logout ends the backend session. Local state is cleared even when the
// backend call fails.
func (s *Session) Logout(ctx context.Context) error {
	err := s.backend.Logout(ctx)
	if err != nil {
		s.logger.Warn("logout call failed, clearing local session", "err", err)
	}

	s.mu.Lock()
	s.user, s.isGuest, s.token = nil, false, ""
	s.mu.Unlock()
	s.backend.SetToken("")

	for _, key := range []string{storage.KeyUser, storage.KeyIsGuest, storage.KeyToken} {
		if derr := s.store.Delete(key); derr != nil {
			s.logger.Warn("clearing session", "key", key, "err", derr)
		}
	}
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// RequireIdentity returns ErrNotAuthenticated when nobody is signed in.
func (s *Session) RequireIdentity() error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

func (s *Session) set(user *api.User, guest bool, token string) {
	if guest {
		token = ""
	}
	s.mu.Lock()
	s.user, s.isGuest, s.token = user, guest, token
	s.mu.Unlock()
	s.installToken()

	save := func(key string, v any) {
		if err := storage.Save(s.store, key, v); err != nil {
			s.logger.Warn("persisting session", "key", key, "err", err)
		}
	}
	save(storage.KeyUser, user)
	save(storage.KeyIsGuest, guest)
	if token != "" {
		save(storage.KeyToken, token)
	} else if err := s.store.Delete(storage.KeyToken); err != nil {
		s.logger.Warn("clearing token", "err", err)
	}
}

// installToken sends Bearer only for registered users.
func (s *Session) installToken() {
	s.mu.RLock()
	token := s.token
	if s.isGuest {
		token = ""
	}
	s.mu.RUnlock()
	s.backend.SetToken(token)
}
