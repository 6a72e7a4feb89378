package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvcrn/bggeo-token-refresh/internal/auth"
	"github.com/dvcrn/bggeo-token-refresh/internal/notify"
	"github.com/dvcrn/bggeo-token-refresh/internal/state"
)

// Outcome describes how a refresh attempt ended.
type Outcome int

const (
	// OutcomeSkipped means another attempt was already running.
	OutcomeSkipped Outcome = iota
	// OutcomeRefreshed means new tokens were obtained and handed to the store.
	OutcomeRefreshed
	// OutcomeConfigIncomplete means extras.refreshUrl was not set.
	OutcomeConfigIncomplete
	// OutcomeExchangeFailed means the refresh endpoint did not yield tokens.
	OutcomeExchangeFailed
	// OutcomeFailed covers store read errors and unexpected panics.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeConfigIncomplete:
		return "config_incomplete"
	case OutcomeExchangeFailed:
		return "exchange_failed"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Exchanger trades a refresh URL for a new token record.
type Exchanger interface {
	Exchange(ctx context.Context, refreshURL string) (*auth.TokenRecord, error)
}

// Options tune a Coordinator. Zero values select the defaults.
type Options struct {
	Strategy URLStrategy
	// Timeout bounds one attempt from store read to commit hand-off.
	Timeout time.Duration
	// Template is used for user-facing notifications.
	Template notify.Template
	// NotifyOnCommitFailure also notifies the user when the store rejects
	// the updated configuration.
	NotifyOnCommitFailure bool
	// OnCommit, when set, observes every commit acknowledgment.
	OnCommit func(state.CommitResult)
}

// Coordinator runs token refreshes against a configuration store, allowing at
// most one in flight at a time. Callers arriving while one runs are dropped,
// not queued.
type Coordinator struct {
	store    state.Store
	client   Exchanger
	notifier notify.Notifier
	opts     Options
	logger   zerolog.Logger

	refreshing atomic.Bool
	wg         sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store state.Store, client Exchanger, notifier notify.Notifier, logger zerolog.Logger, opts Options) *Coordinator {
	if opts.Strategy == nil {
		opts.Strategy = QueryStrategy{Mode: QueryReplace}
	}
	if opts.Timeout == 0 {
		opts.Timeout = auth.DefaultExchangeTimeout
	}
	if opts.Template == (notify.Template{}) {
		opts.Template = notify.DefaultTemplate()
	}
	return &Coordinator{
		store:    store,
		client:   client,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// InProgress reports whether an attempt is currently running.
func (c *Coordinator) InProgress() bool {
	return c.refreshing.Load()
}

// Refresh runs one attempt on the calling goroutine.
func (c *Coordinator) Refresh(ctx context.Context) Outcome {
	if !c.refreshing.CompareAndSwap(false, true) {
		c.logger.Debug().Msg("Refresh already in progress, skipping")
		return OutcomeSkipped
	}
	defer c.refreshing.Store(false)
	return c.run(ctx)
}

// Trigger starts an attempt on its own goroutine and returns immediately. It
// reports false when an attempt is already running. The attempt is detached
// from ctx cancellation but keeps its values.
func (c *Coordinator) Trigger(ctx context.Context) bool {
	if !c.refreshing.CompareAndSwap(false, true) {
		c.logger.Debug().Msg("Refresh already in progress, dropping trigger")
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.refreshing.Store(false)
		c.run(context.WithoutCancel(ctx))
	}()
	return true
}

// Wait blocks until triggered attempts, notifications and commit
// acknowledgments have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) run(ctx context.Context) (outcome Outcome) {
	log := c.logger.With().Str("attempt_id", uuid.NewString()).Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("❌ Token refresh panicked")
			outcome = OutcomeFailed
		}
		log.Info().
			Str("outcome", outcome.String()).
			Dur("duration", time.Since(start)).
			Msg("Token refresh finished")
	}()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	cfg, err := c.store.Get(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			log.Error().Msg("❌ No configuration stored, cannot refresh token")
			c.notify(ctx, log, "ConfigUrl not set")
			return OutcomeConfigIncomplete
		}
		log.Error().Err(err).Msg("❌ Failed to read configuration")
		return OutcomeFailed
	}

	refreshURL := cfg.Extras.RefreshURL
	if refreshURL == "" {
		log.Error().Msg("❌ extras.refreshUrl not set, cannot refresh token")
		c.notify(ctx, log, "ConfigUrl not set")
		return OutcomeConfigIncomplete
	}

	var oldRefreshToken string
	if cfg.Extras.Token != nil {
		oldRefreshToken = cfg.Extras.Token.RefreshToken
	} else {
		log.Warn().Msg("No stored token record, requesting with refreshUrl as is")
	}

	requestURL := c.opts.Strategy.RequestURL(refreshURL, oldRefreshToken)
	log.Info().Str("url", auth.RedactURL(requestURL)).Msg("🔄 Refreshing access token")

	record, err := c.client.Exchange(ctx, requestURL)
	if err == nil && !record.Valid() {
		err = auth.ErrMalformedResponse
	}
	if err != nil {
		log.Error().Err(err).Msg("❌ Could not refresh token")
		c.notify(ctx, log, "Could not refresh token")
		return OutcomeExchangeFailed
	}

	updated := cfg.Clone()
	updated.SetBearer(record.AccessToken)
	updated.Extras.RefreshURL = c.opts.Strategy.UpdatedURL(refreshURL, oldRefreshToken, record.RefreshToken)
	updated.Extras.Token = record

	ev := log.Info().Str("access_token", auth.Preview(record.AccessToken))
	if exp, ok := auth.AccessTokenExpiry(record.AccessToken); ok {
		ev = ev.Int64("minutes_until_expiry", int64(time.Until(exp)/time.Minute))
	}
	ev.Msg("✅ Obtained new access token, committing configuration")

	c.commit(ctx, log, updated)
	return OutcomeRefreshed
}

// commit hands cfg to the store. The wait group entry is released exactly
// once, by the acknowledgment or by a panic out of Set.
func (c *Coordinator) commit(ctx context.Context, log zerolog.Logger, cfg *state.Configuration) {
	var once sync.Once
	release := func() { once.Do(c.wg.Done) }

	c.wg.Add(1)
	defer func() {
		if r := recover(); r != nil {
			release()
			panic(r)
		}
	}()
	c.store.Set(ctx, cfg, func(r state.CommitResult) {
		defer release()
		c.onCommit(log, r)
	})
}

func (c *Coordinator) onCommit(log zerolog.Logger, r state.CommitResult) {
	switch {
	case r.Superseded:
		log.Info().Msg("Configuration commit superseded by a newer refresh")
	case r.OK():
		log.Info().Msg("✅ Configuration updated with new access token")
	default:
		log.Error().Err(r.Err).Msg("❌ Failed to update configuration")
		if c.opts.NotifyOnCommitFailure {
			c.notify(context.Background(), log, "Could not save refreshed token")
		}
	}
	if c.opts.OnCommit != nil {
		c.opts.OnCommit(r)
	}
}

// notify sends the user notification without blocking the attempt. Failures
// are logged and otherwise ignored.
func (c *Coordinator) notify(ctx context.Context, log zerolog.Logger, reason string) {
	if c.notifier == nil {
		return
	}
	n := c.opts.Template.New(reason)
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.notifier.Notify(ctx, n); err != nil {
			log.Warn().Err(err).Msg("Failed to send user notification")
		}
	}()
}
