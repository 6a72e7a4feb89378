package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dvcrn/bggeo-token-refresh/internal/app"
	"github.com/dvcrn/bggeo-token-refresh/internal/auth"
	"github.com/dvcrn/bggeo-token-refresh/internal/config"
	"github.com/dvcrn/bggeo-token-refresh/internal/logger"
	"github.com/dvcrn/bggeo-token-refresh/internal/notify"
	"github.com/dvcrn/bggeo-token-refresh/internal/refresh"
	"github.com/dvcrn/bggeo-token-refresh/internal/state"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	storeBackend := flag.String("store", "", "Configuration store: memory, fs, redis or bolt")
	listen := flag.String("listen", "", "Listen address, overrides PORT")
	statePath := flag.String("state-path", "", "Path to the fs store's state.json")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *storeBackend != "" {
		cfg.Store.Backend = *storeBackend
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *statePath != "" {
		cfg.Store.Path = *statePath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	strategy, _ := cfg.Strategy()

	store, closeStore, err := openStore(cfg.Store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open configuration store")
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if seed := state.SeedFromEnv(); seed != nil {
		seeded, err := state.Seed(ctx, store, seed)
		if err != nil {
			log.Error().Err(err).Msg("⚠️  Failed to seed configuration from environment")
		} else if seeded {
			log.Info().Msg("📝 Seeded configuration from environment")
		}
	}
	app.LogTokenStatus(ctx, store, log)

	notifier, closeNotifier, err := openNotifier(cfg.Notify, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up notifier")
	}
	defer closeNotifier()

	a := app.New(store, notifier, log, app.Options{
		AdminAPIKey: cfg.AdminAPIKey,
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

	if cfg.AdminAPIKey == "" {
		log.Warn().Msg("⚠️  ADMIN_API_KEY is not set, /events and /admin endpoints will reject requests")
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.Server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen", cfg.Listen).
			Str("store", cfg.Store.Backend).
			Str("notify", cfg.Notify.Backend).
			Msg("Starting server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Exchange.Timeout+5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shut down server cleanly")
	}
	a.Coordinator.Wait()
	log.Info().Msg("Stopped")
}

func openStore(cfg config.StoreConfig, log zerolog.Logger) (state.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendMemory:
		s, err := state.NewMemoryStore(nil)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Msg("🧠 Using in-memory configuration store")
		return s, noop, nil

	case config.BackendFS:
		path := cfg.Path
		if path == "" {
			path = state.DefaultStatePath()
		}
		if path == "" {
			return nil, noop, fmt.Errorf("could not determine state path, set BGGEO_STORE_PATH")
		}
		if err := state.EnsureParentDir(path); err != nil {
			return nil, noop, err
		}
		log.Info().Str("path", path).Bool("exists", state.FileExists(path)).Msg("📄 Using filesystem configuration store")
		return state.NewFSStore(path), noop, nil

	case config.BackendBolt:
		path := cfg.BoltPath
		if path == "" {
			path = state.DefaultBoltPath()
		}
		if path == "" {
			return nil, noop, fmt.Errorf("could not determine bolt path, set BGGEO_BOLT_PATH")
		}
		if err := state.EnsureParentDir(path); err != nil {
			return nil, noop, err
		}
		s, err := state.OpenBoltStore(path)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Str("path", path).Msg("🗄️  Using bbolt configuration store")
		return s, closer(s, "bolt store", log), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		s := state.NewRedisStore(client, cfg.RedisKey)
		log.Info().Str("addr", cfg.RedisAddr).Msg("🔴 Using redis configuration store")
		return s, closer(s, "redis store", log), nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func openNotifier(cfg config.NotifyConfig, log zerolog.Logger) (notify.Notifier, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.NotifyLog:
		return notify.NewLogNotifier(log), noop, nil

	case config.NotifyNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("bggeo-refresher"))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to nats at %s: %w", cfg.NATSURL, err)
		}
		log.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("📣 Publishing notifications to NATS")
		return notify.NewNATSNotifier(nc, cfg.NATSSubject), func() {
			if err := nc.Drain(); err != nil {
				log.Warn().Err(err).Msg("Failed to drain nats connection")
			}
		}, nil

	case config.NotifyAMQP:
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to amqp broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, noop, fmt.Errorf("failed to open amqp channel: %w", err)
		}
		n, err := notify.NewAMQPNotifier(ch, cfg.AMQPQueue)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, noop, err
		}
		log.Info().Str("queue", cfg.AMQPQueue).Msg("📣 Publishing notifications to RabbitMQ")
		return n, func() {
			ch.Close()
			conn.Close()
		}, nil
	}
	return nil, noop, fmt.Errorf("unknown notify backend %q", cfg.Backend)
}

func closer(c io.Closer, name string, log zerolog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("store", name).Msg("Failed to close store")
		}
	}
}
