package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenChecker inspects a stored bearer token before it is sent to the server.
// Returning an error marks the token unusable and skips the identity lookup.
type TokenChecker interface {
	Check(token string, now time.Time) error
}

// TokenCheckerFunc adapts a function into a TokenChecker.
type TokenCheckerFunc func(token string, now time.Time) error

// Check satisfies the TokenChecker interface.
func (f TokenCheckerFunc) Check(token string, now time.Time) error {
	if f == nil {
		return nil
	}
	return f(token, now)
}

// ExpiryChecker rejects JWTs whose exp claim is in the past.
//
// The signature is not verified; the server remains the authority. Opaque
// tokens and JWTs without exp pass through unchanged.
type ExpiryChecker struct {
	// Leeway tolerates small clock skew between client and server.
	Leeway time.Duration
}

// Check satisfies the TokenChecker interface.
func (c ExpiryChecker) Check(token string, now time.Time) error {
	exp, ok := TokenExpiry(token)
	if !ok {
		return nil
	}
	if now.After(exp.Add(c.Leeway)) {
		return NewError(ErrTokenExpired, nil, map[string]any{
			"expired_at": exp.UTC().Format(time.RFC3339),
		})
	}
	return nil
}

// TokenExpiry returns the exp claim of an unverified JWT.
// ok is false when token is not a JWT or carries no expiry.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
