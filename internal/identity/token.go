// Package identity extracts user identity from CRM session tokens.
//
// The bridge receives an already-issued token from the host shell and
// only needs the subject claim to address the per-user push channel.
// Signature verification stays with the backend that issued the token.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Token parse errors.
var (
	ErrMalformedToken = errors.New("malformed session token")
	ErrNoSubject      = errors.New("session token has no subject claim")
)

// UserID returns the subject claim of the session token.
func UserID(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}
