// Package session holds the process-wide authentication state: the user id and the token pair,
// persisted together through a Store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"Soundy/logger"
)

// ErrNoSession is returned by stores that hold no credentials.
var ErrNoSession = errors.New("no stored session")

// ErrIncomplete is returned when credentials are missing one of their three values.
var ErrIncomplete = errors.New("incomplete credentials")

// Credentials is the persisted session triple. Keys match the values the web client keeps in
// local storage.
type Credentials struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether all three values are present.
func (c Credentials) Complete() bool {
	return c.UserID != "" && c.AccessToken != "" && c.RefreshToken != ""
}

// Store persists Credentials. Implementations write and clear the three values together.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}

// State is the session shared by the HTTP client, the player and the UI layer. It is either
// authenticated (all three values set) or anonymous (none set).
type State struct {
	mu      sync.RWMutex
	creds   Credentials
	store   Store
	onClear []func()
}

// NewState creates an anonymous state backed by store. A nil store keeps the session in memory.
func NewState(store Store) *State {
	if store == nil {
		store = NewMemoryStore()
	}
	return &State{store: store}
}

// Restore loads persisted credentials at cold start. It reports whether a complete session was
// found; a partial record is wiped from the store.
func (s *State) Restore(ctx context.Context) (bool, error) {
	creds, err := s.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}

	if !creds.Complete() {
		logger.Warn("[Session] 丢弃不完整的会话记录", logger.Bool("hasUserId", creds.UserID != ""))
		if err := s.store.Clear(ctx); err != nil {
			return false, fmt.Errorf("failed to clear partial session: %w", err)
		}
		return false, nil
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return true, nil
}

// Set persists and installs a complete credential set.
func (s *State) Set(ctx context.Context, creds Credentials) error {
	if !creds.Complete() {
		return ErrIncomplete
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, creds); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	s.creds = creds
	return nil
}

// Clear drops the session from memory and from the store. Clear hooks run when an authenticated
// session ends. The in-memory state is cleared even when the store fails.
func (s *State) Clear(ctx context.Context) error {
	s.mu.Lock()
	wasAuthenticated := s.creds.Complete()
	s.creds = Credentials{}
	hooks := append([]func(){}, s.onClear...)
	err := s.store.Clear(ctx)
	s.mu.Unlock()

	if wasAuthenticated {
		for _, fn := range hooks {
			fn()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to clear stored session: %w", err)
	}
	return nil
}

// OnClear registers fn to run whenever an authenticated session is cleared (logout, refresh
// failure). fn must not call back into Clear.
func (s *State) OnClear(fn func()) {
	s.mu.Lock()
	s.onClear = append(s.onClear, fn)
	s.mu.Unlock()
}

// Credentials returns a copy of the current credentials.
func (s *State) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func (s *State) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

func (s *State) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.RefreshToken
}

func (s *State) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.UserID
}

// IsAuthenticated reports whether a complete session is installed.
func (s *State) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Complete()
}
