package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmpshare/internal/repository"
)

func TestAccountService_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.accounts.Register(ctx, RegisterInput{Email: " Alice@Example.com ", Password: "s3cret", Name: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, repository.RoleUser, user.Role)
	assert.NotEqual(t, "s3cret", user.PasswordHash)

	for _, identifier := range []string{"alice@example.com", "alice"} {
		session, err := env.accounts.Login(ctx, identifier, "s3cret")
		require.NoError(t, err, identifier)
		assert.NotEmpty(t, session.Token)
		assert.Equal(t, user.ID, session.User.ID)
		assert.True(t, session.ExpiresAt.After(env.clock.Now()))
	}
}

func TestAccountService_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{name: "missing email", in: RegisterInput{Password: "x"}, want: ErrValidation},
		{name: "missing password", in: RegisterInput{Email: "a@example.com"}, want: ErrValidation},
		{name: "malformed email", in: RegisterInput{Email: "nope", Password: "x"}, want: ErrValidation},
		{name: "password too long", in: RegisterInput{Email: "b@example.com", Password: strings.Repeat("p", 100)}, want: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.accounts.Register(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccountService_RegisterConflictAndAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin, err := env.accounts.Register(ctx, RegisterInput{Email: "admin@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, repository.RoleAdmin, admin.Role)

	_, err = env.accounts.Register(ctx, RegisterInput{Email: "ADMIN@example.com", Password: "pw"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestAccountService_LoginFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.accounts.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "right", Name: "alice"})
	require.NoError(t, err)

	_, errWrong := env.accounts.Login(ctx, "alice@example.com", "wrong")
	_, errMissing := env.accounts.Login(ctx, "nobody@example.com", "right")
	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	require.ErrorIs(t, errMissing, ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errMissing.Error())

	_, err = env.accounts.Login(ctx, "", "right")
	require.ErrorIs(t, err, ErrValidation)
}
