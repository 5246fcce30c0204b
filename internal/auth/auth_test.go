package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardoC/chatsync/internal/apierr"
	"github.com/RichardoC/chatsync/internal/session"
)

type fakeGateway struct {
	token    string
	err      error
	logins   int
	register []string
}

func (f *fakeGateway) Login(_ context.Context, username, _ string) (string, error) {
	f.logins++
	return f.token, f.err
}

func (f *fakeGateway) Register(_ context.Context, email, _ string) error {
	f.register = append(f.register, email)
	return f.err
}

func TestValidateEmail(t *testing.T) {
	s := New(&fakeGateway{}, session.New())

	assert.NoError(t, s.ValidateEmail("ana.perez@docente.uss.cl"))
	for _, email := range []string{"", "ana@gmail.com", "ana@docente.uss.cl.evil.com", "@docente.uss.cl", "ana perez@docente.uss.cl", "ana@docenteXuss.cl"} {
		err := s.ValidateEmail(email)
		var apiErr *apierr.Error
		require.True(t, errors.As(err, &apiErr), email)
		assert.Equal(t, apierr.Validation, apiErr.Kind)
		assert.Equal(t, "email", apiErr.Field)
	}

	custom := New(&fakeGateway{}, session.New(), WithEmailDomain("example.org"))
	assert.NoError(t, custom.ValidateEmail("x@example.org"))
	assert.Error(t, custom.ValidateEmail("x@docente.uss.cl"))
}

func TestValidatePassword(t *testing.T) {
	s := New(&fakeGateway{}, session.New())

	assert.NoError(t, s.ValidatePassword("secret"))
	for _, pw := range []string{"", "12345"} {
		var apiErr *apierr.Error
		require.True(t, errors.As(s.ValidatePassword(pw), &apiErr))
		assert.Equal(t, "password", apiErr.Field)
	}
}

func TestLoginValidatesBeforeNetwork(t *testing.T) {
	gw := &fakeGateway{token: "opaque"}
	sess := session.New()
	s := New(gw, sess)

	err := s.Login(context.Background(), "ana@gmail.com", "secret")
	assert.True(t, errors.Is(err, apierr.ErrValidation))
	assert.Equal(t, 0, gw.logins)
	assert.False(t, sess.Authenticated())
}

func TestLoginInstallsToken(t *testing.T) {
	gw := &fakeGateway{token: "opaque"}
	sess := session.New()
	s := New(gw, sess)

	require.NoError(t, s.Login(context.Background(), " ana@docente.uss.cl ", "secret"))
	assert.Equal(t, "opaque", sess.Token())

	s.Logout()
	assert.False(t, sess.Authenticated())
}

func TestLoginPropagatesAuthError(t *testing.T) {
	gw := &fakeGateway{err: apierr.FromStatus("login", 401, "Credenciales inválidas")}
	sess := session.New()
	s := New(gw, sess)

	err := s.Login(context.Background(), "ana@docente.uss.cl", "secret")
	assert.True(t, apierr.IsAuth(err))
	assert.False(t, sess.Authenticated())
}

func TestRegister(t *testing.T) {
	gw := &fakeGateway{}
	s := New(gw, session.New())

	require.NoError(t, s.Register(context.Background(), "ana@docente.uss.cl", "secret"))
	assert.Equal(t, []string{"ana@docente.uss.cl"}, gw.register)

	assert.Error(t, s.Register(context.Background(), "ana@docente.uss.cl", "123"))
	assert.Len(t, gw.register, 1)
}
