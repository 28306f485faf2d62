// Package authtest signs bearer tokens for tests of JWT-protected routes.
// Production tokens are issued by the identity service.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Token returns an HS256 token for userID with role, valid for an hour.
func Token(t testing.TB, secret string, userID uint64, role string) string {
	t.Helper()
	now := time.Now().UTC()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  now.Add(time.Hour).Unix(),
		"iat":  now.Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// Bearer is Token formatted as an Authorization header value.
func Bearer(t testing.TB, secret string, userID uint64, role string) string {
	t.Helper()
	return "Bearer " + Token(t, secret, userID, role)
}
