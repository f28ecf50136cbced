package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/draiimon/PanicSense-Final-sub000/app/archive"
	"github.com/draiimon/PanicSense-Final-sub000/app/batches"
	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/draiimon/PanicSense-Final-sub000/app/events"
	"github.com/draiimon/PanicSense-Final-sub000/app/postgres"
	"github.com/draiimon/PanicSense-Final-sub000/app/sessions"
	"github.com/draiimon/PanicSense-Final-sub000/app/usage"
	"github.com/draiimon/PanicSense-Final-sub000/app/worker"

	"github.com/redis/go-redis/v9"
)

// Backends groups the storage and messaging clients chosen from config.
// Anything left unconfigured falls back to an in-memory implementation.
type Backends struct {
	DB       *sql.DB
	Sessions sessions.Repository
	Results  batches.ResultStore
	Usage    usage.Store
	Examples worker.ExampleStore
	Cache    worker.ExampleCache
	Archive  *archive.Archive
	Events   events.Publisher

	redis *redis.Client
}

// OpenBackends connects to every configured backend. A configured backend
// that cannot be reached is an error, callers decide whether it is fatal.
func OpenBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{
		Sessions: sessions.NewMemoryRepository(),
		Results:  batches.NewMemoryWriter(),
		Cache:    worker.NewMemoryCache(0),
	}

	if cfg.DB.Enabled() {
		db, err := postgres.Open(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to Postgres", "host", cfg.DB.URL, "database", cfg.DB.Name)
		b.DB = db
		b.Sessions = postgres.NewSessionRepository(db)
		b.Results = postgres.NewResultWriter(db)
		b.Usage = postgres.NewUsageStore(db)
		b.Examples = postgres.NewExampleStore(db)
	} else {
		logger.Warn("POSTGRES_URL not set, sessions and results are kept in memory")
	}

	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			b.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Cache.RedisAddr, err)
		}
		logger.Info("connected to Redis", "addr", cfg.Cache.RedisAddr)
		b.redis = client
		b.Cache = worker.NewRedisCache(client, cfg.Cache.TTL, logger)
	}

	arch, err := archive.New(cfg.Storage, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	if arch != nil {
		if err := arch.EnsureBucket(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Archive = arch
	}

	pub, err := events.New(ctx, cfg.Events, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Events = pub

	return b, nil
}

func (b *Backends) Close() error {
	var errs []error
	if b.Events != nil {
		errs = append(errs, b.Events.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.DB != nil {
		errs = append(errs, b.DB.Close())
	}
	return errors.Join(errs...)
}
