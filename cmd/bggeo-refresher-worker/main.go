//go:build js && wasm

package main

import (
	"github.com/syumai/workers"

	"github.com/dvcrn/bggeo-token-refresh/internal/app"
	"github.com/dvcrn/bggeo-token-refresh/internal/auth"
	"github.com/dvcrn/bggeo-token-refresh/internal/config"
	"github.com/dvcrn/bggeo-token-refresh/internal/logger"
	"github.com/dvcrn/bggeo-token-refresh/internal/notify"
	"github.com/dvcrn/bggeo-token-refresh/internal/refresh"
	"github.com/dvcrn/bggeo-token-refresh/internal/state"
)

func main() {
	log := logger.New()

	// Worker settings come from bindings only.
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	strategy, err := cfg.Strategy()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid url strategy")
	}

	log.Info().Msg("📦 Using Cloudflare KV configuration store")
	store, err := state.NewKVStore()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Cloudflare KV store")
	}

	a := app.New(store, notify.NewLogNotifier(log), log, app.Options{
		AdminAPIKey: cfg.AdminAPIKey,
		Inline:      true,
		Refresh: refresh.Options{
			Strategy:              strategy,
			Timeout:               cfg.Exchange.Timeout,
			Template:              cfg.Template(),
			NotifyOnCommitFailure: cfg.Refresh.NotifyOnCommitFailure,
		},
		Exchange: []auth.Option{
			auth.WithHeaders(cfg.Exchange.Headers),
			auth.WithTimeout(cfg.Exchange.Timeout),
		},
	})

	workers.Serve(a.Server)
}
