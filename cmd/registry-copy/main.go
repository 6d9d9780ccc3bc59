// Command registry-copy copies connection IDs from one registry backend to
// another, e.g. when moving a deployment from Redis to Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/pscheid92/fanout/internal/adapter/registrystore"
	"github.com/pscheid92/fanout/internal/domain"
)

type copyStats struct {
	scanned int
	copied  int
}

func main() {
	var (
		from     = flag.String("from", "", "Source backend: redis or postgres")
		to       = flag.String("to", "", "Destination backend: redis or postgres")
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		dbURL    = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		key      = flag.String("key", "connections", "Redis hash holding the registry")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (don't write to the destination)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *from == "" || *to == "" {
		log.Fatal("Both --from and --to are required")
	}
	if *from == *to {
		log.Fatal("--from and --to must name different backends")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	open := func(backend string) (registrystore.Store, func()) {
		store, closeFn, err := registrystore.Open(ctx, registrystore.Options{
			Backend:     backend,
			RedisURL:    *redisURL,
			RegistryKey: *key,
			DatabaseURL: *dbURL,
			Retry:       registrystore.DefaultRetryPolicy(),
		})
		if err != nil {
			log.Fatalf("Failed to open %s: %v", backend, err)
		}
		return store, closeFn
	}

	src, closeSrc := open(*from)
	defer closeSrc()
	dst, closeDst := open(*to)
	defer closeDst()

	slog.Info("Connected", "redis", sanitizeURL(*redisURL), "database", sanitizeURL(*dbURL))

	if _, err := copyRegistry(ctx, src, dst, *dryRun); err != nil {
		log.Fatalf("Copy failed: %v", err)
	}

	slog.Info("Copy complete")
}

func copyRegistry(ctx context.Context, src, dst domain.RegistryStore, dryRun bool) (copyStats, error) {
	start := time.Now()
	var stats copyStats

	slog.Info("Starting copy", "dry_run", dryRun)

	ids, err := src.Scan(ctx)
	if err != nil {
		return stats, fmt.Errorf("scan source: %w", err)
	}
	stats.scanned = len(ids)

	for _, id := range ids {
		if !dryRun {
			if err := dst.Put(ctx, id); err != nil {
				return stats, fmt.Errorf("put %s: %w", id, err)
			}
		}
		slog.Debug("Copied connection", "connection_id", id)
		stats.copied++
	}

	slog.Info("Copy summary",
		"scanned", stats.scanned,
		"copied", stats.copied,
		"duration_ms", time.Since(start).Milliseconds())

	if dryRun {
		return stats, nil
	}

	// Destination may hold extra IDs from before the copy, so only a shortfall is suspicious.
	got, err := dst.Scan(ctx)
	if err != nil {
		return stats, fmt.Errorf("verify destination: %w", err)
	}
	slog.Info("Destination verification", "size", len(got), "expected_at_least", stats.copied)
	if len(got) < stats.copied {
		slog.Warn("Destination smaller than copied set", "expected_at_least", stats.copied, "actual", len(got))
	}

	return stats, nil
}

// sanitizeURL hides the password of a connection URL for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
