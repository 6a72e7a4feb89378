package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenExpiry reads the exp claim of a JWT access token without
// verifying its signature. Opaque tokens report false.
func AccessTokenExpiry(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
