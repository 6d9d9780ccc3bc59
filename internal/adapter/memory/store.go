// Package memory provides an in-process registry store for single-instance and test setups.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
)

// RegistryStore keeps the connection registry in a map. Safe for concurrent use.
type RegistryStore struct {
	mu          sync.RWMutex
	clock       clockwork.Clock
	connections map[string]time.Time
}

var (
	_ domain.RegistryStore    = (*RegistryStore)(nil)
	_ domain.ConnectionLister = (*RegistryStore)(nil)
)

func NewRegistryStore(clock clockwork.Clock) *RegistryStore {
	return &RegistryStore{
		clock:       clock,
		connections: make(map[string]time.Time),
	}
}

func (s *RegistryStore) Put(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[connectionID] = s.clock.Now()
	return nil
}

func (s *RegistryStore) Delete(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, connectionID)
	return nil
}

// Scan returns the IDs sorted lexically.
func (s *RegistryStore) Scan(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.connections)), nil
}

// List returns all connections, oldest first.
func (s *RegistryStore) List(_ context.Context) ([]domain.Connection, error) {
	s.mu.RLock()
	conns := make([]domain.Connection, 0, len(s.connections))
	for id, at := range s.connections {
		conns = append(conns, domain.Connection{ID: id, ConnectedAt: at})
	}
	s.mu.RUnlock()

	slices.SortFunc(conns, func(a, b domain.Connection) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return conns, nil
}

// Ping always succeeds; it lets the memory store stand in for a health check.
func (s *RegistryStore) Ping(context.Context) error {
	return nil
}
