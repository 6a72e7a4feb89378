package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "device-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	got, ok := AccessTokenExpiry(signed)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))
}

func TestAccessTokenExpiryOpaqueToken(t *testing.T) {
	_, ok := AccessTokenExpiry("opaque-token")
	assert.False(t, ok)

	_, ok = AccessTokenExpiry("")
	assert.False(t, ok)
}

func TestAccessTokenExpiryWithoutExpClaim(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, ok := AccessTokenExpiry(signed)
	assert.False(t, ok)
}
