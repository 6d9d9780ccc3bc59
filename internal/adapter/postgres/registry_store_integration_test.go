package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*RegistryStore, *clockwork.FakeClock) {
	t.Helper()
	pool := setupTestDB(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewRegistryStore(pool, clock), clock
}

func TestRegistryStore_ScanEmpty(t *testing.T) {
	store, _ := setupTestStore(t)

	ids, err := store.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRegistryStore_PutAndScan(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "A"))
	require.NoError(t, store.Put(ctx, "B"))

	ids, err := store.Scan(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, ids)
}

func TestRegistryStore_PutTwiceRefreshesConnectedAt(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "A"))
	clock.Advance(time.Hour)
	require.NoError(t, store.Put(ctx, "A"))

	conns, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.True(t, conns[0].ConnectedAt.Equal(clock.Now()))
}

func TestRegistryStore_DeleteUnknownSucceeds(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.Delete(context.Background(), "never-added"))
}

func TestRegistryStore_Delete(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "A"))
	require.NoError(t, store.Put(ctx, "B"))
	require.NoError(t, store.Delete(ctx, "A"))

	ids, err := store.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids)
}

func TestRegistryStore_ListOrdersByConnectedAt(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "early"))
	clock.Advance(time.Minute)
	require.NoError(t, store.Put(ctx, "late"))

	conns, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "early", conns[0].ID)
	assert.Equal(t, "late", conns[1].ID)
}

func TestRegistryStore_ConcurrentPuts(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Put(ctx, fmt.Sprintf("conn-%02d", i%10)))
		}()
	}
	wg.Wait()

	ids, err := store.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 10)
}

func TestRunMigrationsWithLock_Idempotent(t *testing.T) {
	pool := setupTestDB(t)

	assert.NoError(t, RunMigrationsWithLock(context.Background(), pool))
}

func TestRegistryStore_Ping(t *testing.T) {
	store, _ := setupTestStore(t)

	assert.NoError(t, store.Ping(context.Background()))
}
