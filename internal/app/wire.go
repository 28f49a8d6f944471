package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/matchmarket/internal/blob/s3"
	"github.com/alanyoungcy/matchmarket/internal/cache/redis"
	"github.com/alanyoungcy/matchmarket/internal/config"
	"github.com/alanyoungcy/matchmarket/internal/domain"
	"github.com/alanyoungcy/matchmarket/internal/feed"
	"github.com/alanyoungcy/matchmarket/internal/server/handler"
	"github.com/alanyoungcy/matchmarket/internal/service"
	"github.com/alanyoungcy/matchmarket/internal/store/postgres"
)

// Dependencies bundles the concrete collaborators every mode draws on. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Service service.Deps

	RateLimiter domain.RateLimiter
	// Relay is set when change events are republished on the Redis bus.
	Relay *feed.BusFeed
	// Blob is nil outside export mode.
	Blob *s3blob.Writer

	checks map[string]handler.Check
}

// needsFeed reports whether the mode runs market workers.
func needsFeed(mode string) bool {
	return mode == "serve" || mode == "worker"
}

// needsS3 reports whether the mode writes to object storage.
func needsS3(mode string) bool {
	return mode == "export"
}

// Wire constructs all concrete dependency implementations from cfg and
// returns them with a cleanup function to run on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{checks: make(map[string]handler.Check)}
	mode := strings.ToLower(cfg.Mode)

	// --- PostgreSQL ---
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
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail("postgres migrations", err)
		}
	}
	pool := pgClient.Pool()
	deps.checks["postgres"] = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		Namespace:  cfg.Redis.Namespace,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.checks["redis"] = redisClient.Ping

	bus := redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Service = service.Deps{
		Markets:      postgres.NewMarketStore(pool),
		History:      postgres.NewHistoryStore(pool, logger),
		Trades:       postgres.NewTradeStore(pool),
		Positions:    postgres.NewPositionStore(pool),
		PricingCache: redis.NewPricingCache(redisClient),
		BookCache:    redis.NewOrderbookCache(redisClient),
		SeriesCache:  redis.NewHistoryCache(redisClient, cfg.History.MaxCachedRows),
		MarketCache:  redis.NewMarketCache(redisClient, redis.DefaultMarketTTL),
		Bus:          bus,
		Locks:        redis.NewLockManager(redisClient),
		Logger:       logger,
	}

	// --- Change feed ---
	if needsFeed(mode) {
		var src domain.ChangeFeed
		switch cfg.Feed.Kind {
		case config.FeedPostgres:
			src = feed.NewPostgresFeed(pool, cfg.Feed.Channel, logger)
		case config.FeedRedis:
			src = feed.NewBusFeed(bus, cfg.Feed.BusChannel, logger)
		default:
			src = feed.NewMemoryFeed(logger)
		}
		if err := src.Open(ctx); err != nil {
			return fail("feed open", err)
		}
		closers = append(closers, func() { _ = src.Close() })
		deps.Service.Feed = src

		if cfg.Feed.Relay {
			deps.Relay = feed.NewBusFeed(bus, cfg.Feed.BusChannel, logger)
		}
	}

	// --- S3 ---
	if needsS3(mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.checks["s3"] = s3Client.Health
		deps.Blob = s3blob.NewWriter(s3Client, cfg.Export.Prefix)
	}

	return deps, cleanup, nil
}
