package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvcrn/bggeo-token-refresh/internal/auth"
	"github.com/dvcrn/bggeo-token-refresh/internal/event"
	"github.com/dvcrn/bggeo-token-refresh/internal/notify"
	"github.com/dvcrn/bggeo-token-refresh/internal/refresh"
	"github.com/dvcrn/bggeo-token-refresh/internal/server"
	"github.com/dvcrn/bggeo-token-refresh/internal/state"
)

// Options carries the settings shared by every entry point.
type Options struct {
	AdminAPIKey string
	Refresh     refresh.Options
	Exchange    []auth.Option
	// Inline runs refreshes on the request goroutine and waits for the
	// commit and notification before responding. Runtimes that stop work once
	// the response is sent need this.
	Inline bool
}

// App holds the wired components.
type App struct {
	Coordinator *refresh.Coordinator
	Gate        *event.Gate
	Server      *server.Server
}

// New wires the exchange client, coordinator, event gate and HTTP server
// around the given store and notifier.
func New(store state.Store, notifier notify.Notifier, logger zerolog.Logger, opts Options) *App {
	client := auth.NewClient(logger, opts.Exchange...)
	coordinator := refresh.NewCoordinator(store, client, notifier, logger, opts.Refresh)

	var refresher server.Refresher = coordinator
	if opts.Inline {
		refresher = inlineRefresher{coordinator}
	}
	gate := event.NewGate(refresher, logger)

	return &App{
		Coordinator: coordinator,
		Gate:        gate,
		Server:      server.New(logger, gate, refresher, store, opts.AdminAPIKey),
	}
}

type inlineRefresher struct {
	*refresh.Coordinator
}

func (r inlineRefresher) Trigger(ctx context.Context) bool {
	outcome := r.Refresh(ctx)
	r.Wait()
	return outcome != refresh.OutcomeSkipped
}

// LogTokenStatus reports the stored configuration's refresh readiness at
// startup. It never fails; problems are logged.
func LogTokenStatus(ctx context.Context, store state.Store, log zerolog.Logger) {
	cfg, err := store.Get(ctx)
	if errors.Is(err, state.ErrNotFound) {
		log.Warn().Msg("⚠️  No configuration stored yet, waiting for POST /admin/config")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("⚠️  Failed to read configuration at startup")
		return
	}

	if cfg.Extras.RefreshURL == "" {
		log.Warn().Msg("⚠️  extras.refreshUrl is not set, refreshes will fail")
	} else {
		log.Info().Str("refresh_url", auth.RedactURL(cfg.Extras.RefreshURL)).Msg("✅ Configuration loaded")
	}

	if cfg.Extras.Token == nil {
		return
	}
	exp, ok := auth.AccessTokenExpiry(cfg.Extras.Token.AccessToken)
	if !ok {
		return
	}

	minutesUntilExpiry := int64(time.Until(exp) / time.Minute)
	switch {
	case minutesUntilExpiry <= 0:
		log.Warn().
			Int64("minutes_expired", -minutesUntilExpiry).
			Msg("⚠️  Access token is already expired, next 401 will trigger a refresh")
	case minutesUntilExpiry <= 60:
		log.Warn().
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("⚠️  Access token expires soon")
	default:
		log.Info().
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("✅ Access token is valid and not expiring soon")
	}
}
