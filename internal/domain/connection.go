package domain

import (
	"context"
	"time"
)

// Connection is one registry entry. ConnectedAt is informational only; liveness is
// decided by delivery outcomes, never by age.
type Connection struct {
	ID          string    `json:"connection_id" db:"connection_id"`
	ConnectedAt time.Time `json:"connected_at" db:"connected_at"`
}

// RegistryStore is the durable set of live connection ids.
// Put and Delete must be idempotent; Scan returns a point-in-time snapshot.
type RegistryStore interface {
	Put(ctx context.Context, connectionID string) error
	Delete(ctx context.Context, connectionID string) error
	Scan(ctx context.Context) ([]string, error)
}

// ConnectionLister is implemented by stores that keep connected-at timestamps.
type ConnectionLister interface {
	List(ctx context.Context) ([]Connection, error)
}
