// Package auth issues and validates the bearer tokens used by the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/lirads-audit-server/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrNoSecret           = errors.New("jwt secret is not configured")
)

// Claims identifies the reader behind a request.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// TokenManager authenticates users against bcrypt hashes and signs HS256 tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	users  map[string]string
	now    func() time.Time
}

// NewTokenManager builds a manager from the auth section of the config.
func NewTokenManager(config domain.AuthConfig) (*TokenManager, error) {
	if config.JWTSecret == "" {
		return nil, ErrNoSecret
	}
	ttl := config.TokenTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	users := make(map[string]string, len(config.Users))
	for u, h := range config.Users {
		users[u] = h
	}
	return &TokenManager{
		secret: []byte(config.JWTSecret),
		issuer: config.Issuer,
		ttl:    ttl,
		users:  users,
		now:    time.Now,
	}, nil
}

// HashPassword returns a bcrypt hash suitable for the users map.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash failed: %w", err)
	}
	return string(h), nil
}

// Login checks the password and returns a signed token with its expiry.
func (m *TokenManager) Login(username, password string) (string, time.Time, error) {
	hash, ok := m.users[username]
	if !ok {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return m.Issue(username)
}

// Issue signs a token for username.
func (m *TokenManager) Issue(username string) (string, time.Time, error) {
	now := m.now().UTC()
	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Validate parses tokenStr and returns its claims.
func (m *TokenManager) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
