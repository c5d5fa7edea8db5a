package app

import (
	"context"
	"fmt"
	"log/slog"

	"tokensniper/internal/cache/redis"
	"tokensniper/internal/config"
	"tokensniper/internal/domain"
	"tokensniper/internal/engine"
	"tokensniper/internal/executor"
	"tokensniper/internal/feed"
	"tokensniper/internal/notify"
	"tokensniper/internal/position"
	"tokensniper/internal/server"
	"tokensniper/internal/store/postgres"
	"tokensniper/internal/venue"
)

// Dependencies bundles every component the running application needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Repo       domain.PositionRepository // nil when postgres is disabled
	PriceCache domain.PriceCache         // nil when redis is disabled
	EventBus   domain.EventBus           // nil when redis is disabled

	Store    *position.Store
	Engine   *engine.Engine
	Watcher  *venue.MigrationWatcher
	Notifier *notify.Notifier
	Server   *server.Server // nil when the ops API is disabled
}

// Wire constructs all concrete implementations from the configuration and
// returns them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (durable position state) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Repo = postgres.NewPositionRepo(pgClient.Pool())
	}

	// --- Redis (price cache + event bus) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, deps.EventBus, cfg.Redis.EventChannel, logger)

	// --- Position store ---
	deps.Store = position.NewStore(deps.Repo, logger)

	// --- Market adapters ---
	priceFeed := feed.New(cfg.Feed.BaseURL, cfg.Engine.FeedTimeout(), deps.PriceCache, logger)
	resolver := venue.NewResolver(cfg.Venue.BaseURL, cfg.Engine.FeedTimeout(), logger)
	deps.Watcher = venue.NewMigrationWatcher(cfg.Venue.WsURL, resolver, logger)

	// --- Trade execution ---
	submitter := executor.NewHTTPSubmitter(cfg.Executor.SubmitURL)
	exec := executor.New(submitter, executor.Config{
		MaxRetries:   cfg.Executor.MaxRetries,
		RetryBackoff: cfg.Executor.RetryBackoff(),
	}, logger)

	// --- Engine ---
	deps.Engine = engine.New(engine.Config{
		PollInterval:           cfg.Engine.PollInterval(),
		FeedTimeout:            cfg.Engine.FeedTimeout(),
		ExecTimeout:            cfg.Engine.ExecTimeout(),
		MaxOutstandingRequests: int64(cfg.Engine.MaxOutstandingRequests),
		Fees:                   cfg.Executor.Fees(),
	}, priceFeed, resolver, exec, deps.Store, deps.Notifier, logger)

	// --- Ops API ---
	if cfg.Server.Enabled {
		deps.Server = server.New(cfg.Server.Port, deps.Engine, deps.Store, deps.PriceCache, logger)
	}

	return deps, cleanup, nil
}
