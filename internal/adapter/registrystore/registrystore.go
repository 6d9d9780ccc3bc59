// Package registrystore opens the configured connection registry backend.
//
// Both the server and the registry-copy tool pick a backend by name and need
// the same connection setup, retry and instrumentation, so that lives here
// instead of in each main package.
package registrystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/memory"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/adapter/postgres"
	"github.com/pscheid92/fanout/internal/adapter/redis"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/config"
	"github.com/pscheid92/fanout/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

var ErrUnknownBackend = errors.New("unknown registry backend")

// Store is what every backend provides.
type Store interface {
	domain.RegistryStore
	domain.ConnectionLister
	Ping(ctx context.Context) error
}

type Options struct {
	Backend     string
	RedisURL    string
	RegistryKey string
	DatabaseURL string

	// PoolSize is the minimum Postgres pool size; zero keeps the driver default.
	PoolSize int32

	Clock clockwork.Clock
	// Metrics instruments the Redis client and Postgres pool. Nil disables it.
	Metrics *metrics.Bundle
	Retry   retry.Policy
}

// DefaultRetryPolicy covers a dependency that comes up a few seconds after us.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Registry store not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
}

func FromConfig(cfg *config.Config) Options {
	return Options{
		Backend:     cfg.RegistryBackend,
		RedisURL:    cfg.RedisURL,
		RegistryKey: cfg.RegistryKey,
		DatabaseURL: cfg.DatabaseURL,
		PoolSize:    int32(cfg.BroadcastConcurrency) + 4,
		Clock:       clockwork.NewRealClock(),
		Retry:       DefaultRetryPolicy(),
	}
}

// Open connects to the backend named by opts.Backend, retrying unreachable
// stores per opts.Retry. The returned close func releases the connection.
func Open(ctx context.Context, opts Options) (Store, func(), error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = DefaultRetryPolicy()
	}

	switch opts.Backend {
	case config.BackendMemory:
		return memory.NewRegistryStore(opts.Clock), func() {}, nil
	case config.BackendRedis:
		return openRedis(ctx, opts)
	case config.BackendPostgres:
		return openPostgres(ctx, opts)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func openRedis(ctx context.Context, opts Options) (Store, func(), error) {
	rdb, err := retry.Do(ctx, opts.Retry, classify, func(ctx context.Context) (*goredis.Client, error) {
		// A fresh breaker per attempt, so failed startup pings do not leave it open.
		return redis.NewClient(ctx, opts.RedisURL, redisHooks(opts.Metrics)...)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	slog.Info("Registry store ready", "backend", config.BackendRedis, "key", opts.RegistryKey)
	store := redis.NewRegistryStore(rdb, opts.RegistryKey, opts.Clock)
	return store, func() { _ = rdb.Close() }, nil
}

func redisHooks(m *metrics.Bundle) []goredis.Hook {
	if m == nil {
		return []goredis.Hook{redis.NewCircuitBreakerHook(redis.DefaultBreakerSettings(), nil)}
	}
	return []goredis.Hook{
		redis.NewMetricsHook(m.Redis),
		redis.NewCircuitBreakerHook(redis.DefaultBreakerSettings(), m.Breakers),
	}
}

func openPostgres(ctx context.Context, opts Options) (Store, func(), error) {
	connectOpts := []postgres.Option{postgres.WithMaxConns(opts.PoolSize)}
	if opts.Metrics != nil {
		connectOpts = append(connectOpts, postgres.WithTracer(postgres.NewMetricsTracer(opts.Metrics.Database)))
	}

	pool, err := retry.Do(ctx, opts.Retry, classify, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, opts.DatabaseURL, connectOpts...)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	slog.Info("Registry store ready", "backend", config.BackendPostgres)
	return postgres.NewRegistryStore(pool, opts.Clock), pool.Close, nil
}

func classify(err error) retry.Action {
	if errors.Is(err, redis.ErrInvalidURL) || errors.Is(err, postgres.ErrInvalidURL) {
		return retry.Stop
	}
	return retry.Retry
}
