package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmpshare/internal/repository"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, CheckPassword("s3cret", hash))
	assert.False(t, CheckPassword("wrong", hash))

	_, err = HashPassword(strings.Repeat("a", 80))
	assert.True(t, IsPasswordTooLong(err))
}

func TestSessions_IssueAndVerify(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := NewSessions("secret", 30*24*time.Hour, WithClock(clock))

	identity := &repository.Identity{ID: "u1", Email: "a@example.com", Name: "alice", Role: repository.RoleAdmin}
	token, expiresAt, err := s.Issue(identity)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*24*time.Hour), expiresAt)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)

	now = now.Add(31 * 24 * time.Hour)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessions_RejectsForeignTokens(t *testing.T) {
	s := NewSessions("secret", time.Hour)
	other := NewSessions("other-secret", time.Hour)

	token, _, err := other.Issue(&repository.Identity{ID: "u1", Role: repository.RoleUser})
	require.NoError(t, err)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 同一密钥但签发者不同
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessions_UnknownRoleFallsBackToUser(t *testing.T) {
	s := NewSessions("secret", time.Hour)
	token, _, err := s.Issue(&repository.Identity{ID: "u1", Role: "ROOT"})
	require.NoError(t, err)

	got, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleUser, got.Role)
}

func TestSessions_IssueRequiresIdentity(t *testing.T) {
	_, _, err := NewSessions("secret", time.Hour).Issue(nil)
	assert.Error(t, err)
}
