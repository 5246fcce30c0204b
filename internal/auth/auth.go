// Package auth signs users in and out. Credentials are checked locally before
// any request is made.
package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/RichardoC/chatsync/internal/apierr"
	"github.com/RichardoC/chatsync/internal/session"
)

const (
	DefaultEmailDomain = "docente.uss.cl"
	MinPasswordLength  = 6
)

type Gateway interface {
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, email, password string) error
}

type Service struct {
	gateway Gateway
	session *session.Session
	logger  *zap.Logger
	email   *regexp.Regexp
	domain  string
}

type Option func(*Service)

// WithEmailDomain restricts sign-in to addresses of the given domain.
func WithEmailDomain(domain string) Option {
	return func(s *Service) {
		s.domain = domain
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(gw Gateway, sess *session.Session, options ...Option) *Service {
	s := &Service{
		gateway: gw,
		session: sess,
		logger:  zap.NewNop(),
		domain:  DefaultEmailDomain,
	}
	for _, o := range options {
		o(s)
	}
	s.email = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@` + regexp.QuoteMeta(s.domain) + `$`)
	return s
}

func (s *Service) Domain() string {
	return s.domain
}

func (s *Service) ValidateEmail(email string) error {
	if !s.email.MatchString(strings.TrimSpace(email)) {
		return apierr.Validationf("email", "Email debe ser @%s", s.domain)
	}
	return nil
}

func (s *Service) ValidatePassword(password string) error {
	if password == "" {
		return apierr.Validationf("password", "La contraseña es requerida")
	}
	if len([]rune(password)) < MinPasswordLength {
		return apierr.Validationf("password", "La contraseña debe tener al menos %d caracteres", MinPasswordLength)
	}
	return nil
}

func (s *Service) validate(email, password string) error {
	if err := s.ValidateEmail(email); err != nil {
		return err
	}
	return s.ValidatePassword(password)
}

// Login checks the credentials, asks the backend for a token and installs it
// in the session.
func (s *Service) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := s.validate(email, password); err != nil {
		return err
	}

	token, err := s.gateway.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	if err := s.session.Set(token); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	s.logger.Info("logged in", zap.String("email", email))
	return nil
}

func (s *Service) Register(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := s.validate(email, password); err != nil {
		return err
	}
	if err := s.gateway.Register(ctx, email, password); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	s.logger.Info("registered", zap.String("email", email))
	return nil
}

func (s *Service) Logout() {
	s.session.Clear()
	s.logger.Info("logged out")
}
