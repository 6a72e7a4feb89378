package state

import (
	"github.com/dvcrn/bggeo-token-refresh/internal/auth"
	"github.com/dvcrn/bggeo-token-refresh/internal/env"
)

// SeedFromEnv builds an initial configuration from BGGEO_REFRESH_URL,
// BGGEO_ACCESS_TOKEN and BGGEO_REFRESH_TOKEN. It returns nil when none are set.
func SeedFromEnv() *Configuration {
	refreshURL, _ := env.Get("BGGEO_REFRESH_URL")
	accessToken, _ := env.Get("BGGEO_ACCESS_TOKEN")
	refreshToken, _ := env.Get("BGGEO_REFRESH_TOKEN")
	if refreshURL == "" && accessToken == "" && refreshToken == "" {
		return nil
	}

	cfg := &Configuration{Headers: map[string]string{}}
	cfg.Extras.RefreshURL = refreshURL
	if accessToken != "" {
		cfg.SetBearer(accessToken)
	}
	if accessToken != "" || refreshToken != "" {
		cfg.Extras.Token = &auth.TokenRecord{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		}
	}
	return cfg
}
