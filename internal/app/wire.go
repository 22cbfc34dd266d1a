package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/lagbot/internal/blob/s3"
	"github.com/alanyoungcy/lagbot/internal/cache/redis"
	"github.com/alanyoungcy/lagbot/internal/config"
	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/notify"
	"github.com/alanyoungcy/lagbot/internal/store/postgres"
)

// eventStream is the Redis stream key the relay appends published events to.
const eventStream = "lagbot:events"

// Dependencies bundles the external resources the application modes draw on.
// Every field may be nil (or empty): a disabled config section simply
// switches the consumers that need it off.
type Dependencies struct {
	// Postgres-backed stores, nil when persistence is disabled.
	SignalStore   domain.SignalStore
	PositionStore domain.PositionStore
	TradeStore    domain.TradeStore
	StatsStore    domain.StatsStore

	// Redis-backed adapters, nil when redis is disabled.
	PriceCache  domain.PriceCache
	EventRelay  domain.EventRelay
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Archiver is set when object storage and persistence are both enabled.
	Archiver *s3blob.Archiver

	// Senders holds the notification channels with configured credentials.
	Senders []notify.Sender
}

// Wire constructs the concrete implementations for the enabled config
// sections and returns them together with a cleanup function that releases
// them in reverse order on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pg.Pool()
		deps.SignalStore = postgres.NewSignalStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.StatsStore = postgres.NewStatsStore(pool)
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.PriceCache = redis.NewPriceCache(rc)
		deps.EventRelay = redis.NewEventRelay(rc, eventStream)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.LockManager = redis.NewLockManager(rc)
	}

	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = sc.Close() })

		if deps.SignalStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				logger,
				s3blob.NewWriter(sc),
				s3blob.NewReader(sc),
				deps.SignalStore,
				deps.PositionStore,
				deps.LockManager,
			)
		} else {
			logger.WarnContext(ctx, "s3 enabled without postgres, archiver has nothing to roll out")
		}
	}

	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		deps.Senders = append(deps.Senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		deps.Senders = append(deps.Senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, "lagbot"))
	}

	return deps, cleanup, nil
}
