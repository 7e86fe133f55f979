package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lirads-audit-server/internal/domain"
)

func newTestManager(t *testing.T) *TokenManager {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	m, err := NewTokenManager(domain.AuthConfig{
		Enabled:   true,
		JWTSecret: "jwt-test-secret",
		Issuer:    "lirads-audit-server",
		TokenTTL:  time.Hour,
		Users:     map[string]string{"dr.tanaka": string(hash)},
	})
	require.NoError(t, err)
	return m
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	_, err := NewTokenManager(domain.AuthConfig{Enabled: true})
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestLoginAndValidate(t *testing.T) {
	m := newTestManager(t)

	token, exp, err := m.Login("dr.tanaka", "s3cret")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "dr.tanaka", claims.Username)
	assert.Equal(t, "lirads-audit-server", claims.Issuer)
}

func TestLogin_Rejected(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.Login("dr.tanaka", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = m.Login("nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidate_Expired(t *testing.T) {
	m := newTestManager(t)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := m.Issue("dr.tanaka")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_WrongSecret(t *testing.T) {
	m := newTestManager(t)
	token, _, err := m.Issue("dr.tanaka")
	require.NoError(t, err)

	other, err := NewTokenManager(domain.AuthConfig{JWTSecret: "another", Issuer: "lirads-audit-server"})
	require.NoError(t, err)
	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")))
}
