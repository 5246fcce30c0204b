// Package session holds the bearer token of the signed-in user. A Session is
// set on login, read by every outgoing request and cleared on logout or when
// the backend rejects the token.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

type Session struct {
	mu        sync.RWMutex
	token     string
	subject   string
	expiresAt time.Time
	now       func() time.Time
}

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

func New(options ...Option) *Session {
	s := &Session{now: time.Now}
	for _, o := range options {
		o(s)
	}
	return s
}

// Set installs a token. JWT claims are read without verification to learn the
// subject and the expiry; opaque tokens are accepted as non-expiring.
func (s *Session) Set(token string) error {
	if token == "" {
		return errors.New("empty access token")
	}

	var subject string
	var expiresAt time.Time
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil {
		subject = claims.Subject
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.subject = subject
	s.expiresAt = expiresAt
	return nil
}

// Token returns the current token, or "" when none is set or it has expired.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		s.clearLocked()
	}
	return s.token
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subject
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.token = ""
	s.subject = ""
	s.expiresAt = time.Time{}
}

type file struct {
	AccessToken string `yaml:"access_token"`
}

// Save writes the token to path with owner-only permissions. An empty session
// removes the file.
func (s *Session) Save(path string) error {
	token := s.Token()
	if token == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(file{AccessToken: token})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads a token saved by Save. A missing file leaves the session empty.
func (s *Session) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}
	if f.AccessToken == "" {
		return nil
	}
	return s.Set(f.AccessToken)
}
