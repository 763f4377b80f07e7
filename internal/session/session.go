// Package session persists the local login state between CLI runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type Session struct {
	LoggedIn bool      `json:"loggedIn"`
	Token    string    `json:"token,omitempty"`
	SavedAt  time.Time `json:"savedAt"`
}

// ExpiresAt reads the exp claim of a JWT token. The signature is not
// checked; the billing API verifies it on every request.
func (s Session) ExpiresAt() (time.Time, bool, error) {
	if s.Token == "" || strings.Count(s.Token, ".") != 2 {
		return time.Time{}, false, nil
	}

	claims := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false, fmt.Errorf("parse session token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false, nil
	}
	return claims.ExpiresAt.Time, true, nil
}

// Valid reports whether the session is logged in and its token, when it is
// a JWT with an expiry, has not expired at now. Opaque tokens never expire
// locally.
func (s Session) Valid(now time.Time) bool {
	if !s.LoggedIn {
		return false
	}
	exp, ok, err := s.ExpiresAt()
	if err != nil {
		return false
	}
	if !ok {
		return true
	}
	return now.Before(exp)
}

type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context) (Session, error)
	Clear(ctx context.Context) error
}

// FileStore keeps the session as a JSON file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Save(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s.SavedAt.IsZero() {
		s.SavedAt = f.now().UTC()
	}
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Load returns the zero Session when nothing has been saved.
func (f *FileStore) Load(_ context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session file %s: %w", f.path, err)
	}
	return s, nil
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Token returns the bearer token of a valid session, or an empty string.
func (f *FileStore) Token(ctx context.Context) (string, error) {
	s, err := f.Load(ctx)
	if err != nil {
		return "", err
	}
	if !s.Valid(f.now()) {
		return "", nil
	}
	return s.Token, nil
}
