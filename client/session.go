package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Credential is a bearer token issued for one account.
type Credential struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Valid reports whether the credential can be sent.
func (c Credential) Valid() bool {
	if c.Token == "" || c.AccountID == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || time.Now().Before(c.ExpiresAt)
}

// TokenStore persists a credential between process runs.
type TokenStore interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

// Session owns the lifecycle of the signed-in credential. Callers pass
// Session.Credential to each Client call.
type Session struct {
	mu    sync.RWMutex
	cred  Credential
	store TokenStore
}

// NewSession restores a stored credential when store holds a valid one.
// A nil store keeps the credential in memory only.
func NewSession(ctx context.Context, store TokenStore) (*Session, error) {
	s := &Session{store: store}
	if store == nil {
		return s, nil
	}
	c, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoCredential):
		return s, nil
	case err != nil:
		return nil, err
	case c.Valid():
		s.cred = c
	default:
		if err := store.Clear(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SignIn replaces the current credential.
func (s *Session) SignIn(ctx context.Context, c Credential) error {
	if !c.Valid() {
		return ErrNoCredential
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		if err := s.store.Save(ctx, c); err != nil {
			return err
		}
	}
	s.cred = c
	return nil
}

// SignOut drops the credential from memory and the store.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{}
	if s.store != nil {
		return s.store.Clear(ctx)
	}
	return nil
}

// Credential returns the signed-in credential, or ErrNoCredential when there
// is none or it expired.
func (s *Session) Credential() (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.cred.Valid() {
		return Credential{}, ErrNoCredential
	}
	return s.cred, nil
}

// FileTokenStore keeps the credential as JSON in a file readable only by the
// owner.
type FileTokenStore struct {
	Path string
}

func (f FileTokenStore) Load(context.Context) (Credential, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, ErrNoCredential
	}
	if err != nil {
		return Credential{}, fmt.Errorf("client: read token file: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credential{}, fmt.Errorf("client: decode token file: %w", err)
	}
	return c, nil
}

func (f FileTokenStore) Save(_ context.Context, c Credential) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("client: create token dir: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("client: write token file: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f FileTokenStore) Clear(context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("client: remove token file: %w", err)
	}
	return nil
}
