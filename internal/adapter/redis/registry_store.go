package redis

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const defaultScanCount = 500

// RegistryStore keeps connection IDs as fields of one Redis hash.
type RegistryStore struct {
	rdb       *goredis.Client
	key       string
	clock     clockwork.Clock
	scanCount int64
}

var (
	_ domain.RegistryStore    = (*RegistryStore)(nil)
	_ domain.ConnectionLister = (*RegistryStore)(nil)
)

func NewRegistryStore(rdb *goredis.Client, key string, clock clockwork.Clock) *RegistryStore {
	return &RegistryStore{rdb: rdb, key: key, clock: clock, scanCount: defaultScanCount}
}

func (s *RegistryStore) Put(ctx context.Context, connectionID string) error {
	connectedAt := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
	if err := s.rdb.HSet(ctx, s.key, connectionID, connectedAt).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", s.key, err)
	}
	return nil
}

func (s *RegistryStore) Delete(ctx context.Context, connectionID string) error {
	if err := s.rdb.HDel(ctx, s.key, connectionID).Err(); err != nil {
		return fmt.Errorf("hdel %s: %w", s.key, err)
	}
	return nil
}

// Scan pages through the hash with HSCAN. HSCAN may return a field more than
// once while the hash is rehashing, so the result is deduplicated.
func (s *RegistryStore) Scan(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		seen   = make(map[string]struct{})
		cursor uint64
	)

	for {
		kvs, next, err := s.rdb.HScan(ctx, s.key, cursor, "", s.scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("hscan %s: %w", s.key, err)
		}

		for i := 0; i < len(kvs); i += 2 {
			id := kvs[i]
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}

		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

// List returns every connection with its connected-at time, oldest first.
func (s *RegistryStore) List(ctx context.Context) ([]domain.Connection, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}

	conns := make([]domain.Connection, 0, len(fields))
	for id, raw := range fields {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.WarnContext(ctx, "Invalid connected-at value in registry", "connection_id", id, "value", raw)
		}
		conns = append(conns, domain.Connection{ID: id, ConnectedAt: time.UnixMilli(ms).UTC()})
	}

	slices.SortFunc(conns, func(a, b domain.Connection) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return conns, nil
}

// Ping checks Redis reachability for health probes.
func (s *RegistryStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
