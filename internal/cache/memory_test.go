package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bileterr "bilet/internal/errors"
)

func TestMemoryStoreAcquireRespectsCapacity(t *testing.T) {
	const capacity = 7
	const callers = 100

	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	acquired := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.AcquireSlot(ctx, 1, capacity)
			assert.NoError(t, err)
			acquired[i] = ok
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, ok := range acquired {
		if ok {
			granted++
		}
	}
	assert.Equal(t, capacity, granted)

	active, err := store.ActiveSlots(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, capacity, active)
}

func TestMemoryStoreReleaseClampsAtZero(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.ReleaseSlot(ctx, 1))
	active, err := store.ActiveSlots(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, active)

	ok, err := store.AcquireSlot(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.ReleaseSlot(ctx, 1))
	require.NoError(t, store.ReleaseSlot(ctx, 1))

	active, err = store.ActiveSlots(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestMemoryStoreSlotsPerShowing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.AcquireSlot(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	// A full showing does not block another one.
	ok, err = store.AcquireSlot(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireSlot(ctx, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreHeartbeatExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	store.SetClock(func() time.Time { return base })

	require.NoError(t, store.SetHeartbeat(ctx, 1, 10, 2*time.Minute))

	alive, err := store.HeartbeatAlive(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, alive)

	store.SetClock(func() time.Time { return base.Add(3 * time.Minute) })

	alive, err = store.HeartbeatAlive(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, alive)

	// A refresh at the later clock extends the window again.
	require.NoError(t, store.SetHeartbeat(ctx, 1, 10, 2*time.Minute))
	alive, err = store.HeartbeatAlive(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestMemoryStoreDeleteHeartbeat(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SetHeartbeat(ctx, 1, 10, time.Minute))
	require.NoError(t, store.DeleteHeartbeat(ctx, 1, 10))

	alive, err := store.HeartbeatAlive(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestMemoryStoreAuthCache(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetUserIDByAuth(ctx, "a@test.local", "hash")
	assert.ErrorIs(t, err, bileterr.ErrNotFound)

	require.NoError(t, store.CacheUserAuth(ctx, "a@test.local", "hash", 42))

	id, err := store.GetUserIDByAuth(ctx, "a@test.local", "hash")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = store.GetUserIDByAuth(ctx, "a@test.local", "otherhash")
	assert.ErrorIs(t, err, bileterr.ErrNotFound)
}
