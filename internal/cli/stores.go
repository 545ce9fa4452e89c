package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"training-portal/internal/app"
	"training-portal/internal/config"
	"training-portal/internal/docstore"
	"training-portal/internal/infra/memory"
	"training-portal/internal/infra/postgres"
	redisstore "training-portal/internal/infra/redis"
)

// stores bundles the backends chosen by store.driver. close releases their connections.
type stores struct {
	docs     docstore.Store
	contexts app.ContextStore
	close    func()
}

func openStores(ctx context.Context, cfg config.Config, log zerolog.Logger) (stores, error) {
	contextTTL := config.TTLDuration(cfg.Redis.TTL, 12*time.Hour)

	switch cfg.Store.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return stores{}, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis store")
		return stores{
			docs:     redisstore.NewDocumentStore(client),
			contexts: redisstore.NewContextStore(client, contextTTL),
			close:    func() { _ = client.Close() },
		}, nil

	case config.DriverPostgres:
		if cfg.Postgres.URL == "" {
			return stores{}, fmt.Errorf("postgres url not configured")
		}
		if err := postgres.Migrate(ctx, cfg.Postgres.URL, log); err != nil {
			return stores{}, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info().Msg("using postgres store")
		return stores{
			docs:     postgres.NewDocumentStore(pool),
			contexts: memory.NewContextStore(),
			close:    pool.Close,
		}, nil

	default:
		log.Warn().Msg("using in-memory store; sessions and records are lost on restart")
		return stores{
			docs:     memory.NewDocumentStore(),
			contexts: memory.NewContextStore(),
			close:    func() {},
		}, nil
	}
}
