package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
)

const (
	upsertConnection = `
INSERT INTO connections (connection_id, connected_at)
VALUES ($1, $2)
ON CONFLICT (connection_id) DO UPDATE SET connected_at = EXCLUDED.connected_at`

	deleteConnection = `DELETE FROM connections WHERE connection_id = $1`

	scanConnections = `SELECT connection_id FROM connections`

	listConnections = `
SELECT connection_id, connected_at
FROM connections
ORDER BY connected_at, connection_id`
)

// RegistryStore keeps the connection registry in the connections table.
type RegistryStore struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

var (
	_ domain.RegistryStore    = (*RegistryStore)(nil)
	_ domain.ConnectionLister = (*RegistryStore)(nil)
)

func NewRegistryStore(pool *pgxpool.Pool, clock clockwork.Clock) *RegistryStore {
	return &RegistryStore{pool: pool, clock: clock}
}

func (s *RegistryStore) Put(ctx context.Context, connectionID string) error {
	if _, err := s.pool.Exec(ctx, upsertConnection, connectionID, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (s *RegistryStore) Delete(ctx context.Context, connectionID string) error {
	if _, err := s.pool.Exec(ctx, deleteConnection, connectionID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func (s *RegistryStore) Scan(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, scanConnections)
	if err != nil {
		return nil, fmt.Errorf("scan connections: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan connections: %w", err)
	}
	return ids, nil
}

// List returns every connection with its connected-at time, oldest first.
func (s *RegistryStore) List(ctx context.Context) ([]domain.Connection, error) {
	rows, err := s.pool.Query(ctx, listConnections)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	conns, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Connection])
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	for i := range conns {
		conns[i].ConnectedAt = conns[i].ConnectedAt.UTC()
	}
	return conns, nil
}

// Ping checks database reachability for health probes.
func (s *RegistryStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
