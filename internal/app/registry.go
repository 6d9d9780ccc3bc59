package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

// Registry is the only writer of the connection registry besides the broadcaster's
// cleanup path, which goes through Remove as well.
type Registry struct {
	store   domain.RegistryStore
	metrics *metrics.RegistryMetrics
}

// NewRegistry creates a registry on top of store. m may be nil.
func NewRegistry(store domain.RegistryStore, m *metrics.RegistryMetrics) *Registry {
	return &Registry{store: store, metrics: m}
}

// Add records connectionID as live. Adding a present ID overwrites it.
func (r *Registry) Add(ctx context.Context, connectionID string) error {
	if connectionID == "" {
		return fmt.Errorf("%w: empty connection id", domain.ErrMalformedInput)
	}

	err := r.store.Put(ctx, connectionID)
	r.metrics.Observe("add", err)
	if err != nil {
		return storeUnavailable("add connection", err)
	}

	slog.DebugContext(ctx, "Connection added", "connection_id", connectionID)
	return nil
}

// Remove forgets connectionID. Removing an absent ID is not an error.
func (r *Registry) Remove(ctx context.Context, connectionID string) error {
	if connectionID == "" {
		return fmt.Errorf("%w: empty connection id", domain.ErrMalformedInput)
	}

	err := r.store.Delete(ctx, connectionID)
	r.metrics.Observe("remove", err)
	if err != nil {
		return storeUnavailable("remove connection", err)
	}

	slog.DebugContext(ctx, "Connection removed", "connection_id", connectionID)
	return nil
}

// Enumerate returns a snapshot of all recorded connection IDs in store order.
// The slice is owned by the caller and does not track later changes.
func (r *Registry) Enumerate(ctx context.Context) ([]string, error) {
	ids, err := r.store.Scan(ctx)
	r.metrics.Observe("enumerate", err)
	if err != nil {
		return nil, storeUnavailable("enumerate connections", err)
	}

	if r.metrics != nil {
		r.metrics.SnapshotSize.Set(float64(len(ids)))
	}
	return ids, nil
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
