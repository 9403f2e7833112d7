// Package api exposes a debug/status HTTP surface over the engine: per-slot
// request and session inspection, outcome counters, and a websocket feed of
// state-machine transitions and handover decisions, guarded by a bearer
// token minted once at daemon startup.
package api

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAuth  = errors.New("missing authorization header")
	ErrInvalidAuth  = errors.New("invalid authorization header format")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims is the JWT payload minted for the daemon's own bearer token.
// There is exactly one subject ("datactl") since this surface has no
// user accounts, only a single shared operator credential.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// TokenAuth mints and validates the single bearer token this daemon
// instance issues. The secret is generated fresh per process start, so
// a restart invalidates every previously issued token.
type TokenAuth struct {
	secret []byte
}

// NewTokenAuth generates a random HMAC secret for this process.
func NewTokenAuth() (*TokenAuth, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating token secret: %w", err)
	}
	return &TokenAuth{secret: secret}, nil
}

// Mint issues a bearer token valid for ttl, logged once by the caller
// at daemon startup and persisted by datactl's settings file.
func (a *TokenAuth) Mint(ttl time.Duration) (string, error) {
	claims := Claims{
		Subject: "datactl",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a bearer token string.
func (a *TokenAuth) Validate(raw string) error {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuth
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrInvalidAuth
	}
	return parts[1], nil
}

// randomHex is used by callers that want a short opaque id (e.g. for a
// websocket client label) without pulling in a uuid dependency.
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
