package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestUserID(t *testing.T) {
	t.Run("extracts subject", func(t *testing.T) {
		token := signedToken(t, jwt.MapClaims{"sub": "u1", "role": "manager"})

		userID, err := UserID(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signedToken(t, jwt.MapClaims{"role": "manager"})

		_, err := UserID(token)
		assert.ErrorIs(t, err, ErrNoSubject)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := UserID("not-a-jwt")
		assert.ErrorIs(t, err, ErrMalformedToken)
	})
}
