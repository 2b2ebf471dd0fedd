package portal

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the claims the portal backend puts in its tokens.
type Claims struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// ErrTokenExpired is returned for a token whose exp claim has passed.
var ErrTokenExpired = errors.New("token expired")

// ParseClaims decodes a token's claims without verifying its signature. The
// signing secret lives with the backend, so the client can only read the
// claims; the backend remains the authority on validity.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the claims' expiry is at or before now. Tokens
// without an exp claim never expire locally.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}
