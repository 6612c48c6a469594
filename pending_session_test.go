package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStoreLifecycle(t *testing.T) {
	now := testNow
	store := NewMemorySessionStore().WithClock(func() time.Time { return now })
	ctx := context.Background()
	userID := uuid.New()

	ps, err := store.Create(ctx, userID, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, ps.Handle)
	assert.Equal(t, testNow.Add(time.Minute), ps.ExpiresAt)

	got, err := store.Get(ctx, ps.Handle)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)

	n, err := store.RecordFailure(ctx, ps.Handle)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = store.Get(ctx, ps.Handle)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)

	require.NoError(t, store.Consume(ctx, ps.Handle))
	assert.ErrorIs(t, store.Consume(ctx, ps.Handle), ErrNoPendingSession)

	_, err = store.Get(ctx, ps.Handle)
	assert.ErrorIs(t, err, ErrNoPendingSession)
}

func TestMemorySessionStoreHandlesAreUnique(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	userID := uuid.New()

	a, err := store.Create(ctx, userID, time.Minute)
	require.NoError(t, err)
	b, err := store.Create(ctx, userID, time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, a.Handle, b.Handle)
	assert.Equal(t, 2, store.Len())
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	now := testNow
	store := NewMemorySessionStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	ps, err := store.Create(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	now = testNow.Add(59 * time.Second)
	_, err = store.Get(ctx, ps.Handle)
	require.NoError(t, err)

	now = testNow.Add(time.Minute)
	_, err = store.Get(ctx, ps.Handle)
	assert.ErrorIs(t, err, ErrNoPendingSession)

	_, err = store.RecordFailure(ctx, ps.Handle)
	assert.ErrorIs(t, err, ErrNoPendingSession)
	assert.ErrorIs(t, store.Consume(ctx, ps.Handle), ErrNoPendingSession)
}

func TestMemorySessionStoreSweepsOnCreate(t *testing.T) {
	now := testNow
	store := NewMemorySessionStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
	}

	now = testNow.Add(2 * time.Minute)
	_, err := store.Create(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
}

func TestMemorySessionStoreDefaultTTL(t *testing.T) {
	store := NewMemorySessionStore().WithClock(fixedClock(testNow))

	ps, err := store.Create(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(DefaultPendingSessionTTL), ps.ExpiresAt)
}

func TestMemorySessionStoreConsumeOnce(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	ps, err := store.Create(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Consume(ctx, ps.Handle) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestMemorySessionStoreReturnsCopies(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	ps, err := store.Create(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	ps.Attempts = 99
	got, err := store.Get(ctx, ps.Handle)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Attempts)
}

func TestMemorySessionStoreHonorsContext(t *testing.T) {
	store := NewMemorySessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Create(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
