package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields the client reads from marketplace access tokens.
// Signatures are never checked here; the API remains the authority.
type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var ErrMalformedToken = errors.New("malformed token")

// InspectToken decodes a JWT without verifying it.
func InspectToken(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformedToken
	}
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// ExpiresWithin reports whether the token expires before now+window.
// Tokens without an exp claim never expire from the client's point of view.
func ExpiresWithin(tokenStr string, now time.Time, window time.Duration) bool {
	claims, err := InspectToken(tokenStr)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now.Add(window))
}

// SessionRestorable reports whether a persisted token pair can still yield a
// usable session: either the access token is live or the refresh token is.
func SessionRestorable(accessToken, refreshToken string, now time.Time) bool {
	if accessToken == "" {
		return false
	}
	if !ExpiresWithin(accessToken, now, 0) {
		return true
	}
	return refreshToken != "" && !ExpiresWithin(refreshToken, now, 0)
}
