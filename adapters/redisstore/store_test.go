package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-totp-auth"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client), mr
}

func TestStoreCreateAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	userID := uuid.New()

	ps, err := store.Create(ctx, userID, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, ps.Handle)

	assert.True(t, mr.Exists(DefaultKeyPrefix+ps.Handle))
	assert.Equal(t, time.Minute, mr.TTL(DefaultKeyPrefix+ps.Handle))

	got, err := store.Get(ctx, ps.Handle)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, 0, got.Attempts)
	assert.WithinDuration(t, ps.ExpiresAt, got.ExpiresAt, time.Millisecond)
}

func TestStoreGetUnknownHandle(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, auth.ErrNoPendingSession)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrNoPendingSession)
}

func TestStoreExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ps, err := store.Create(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	mr.FastForward(time.Minute + time.Second)

	_, err = store.Get(ctx, ps.Handle)
	assert.ErrorIs(t, err, auth.ErrNoPendingSession)

	_, err = store.RecordFailure(ctx, ps.Handle)
	assert.ErrorIs(t, err, auth.ErrNoPendingSession)
	assert.False(t, mr.Exists(DefaultKeyPrefix+ps.Handle), "failure counting must not recreate the key")

	assert.ErrorIs(t, store.Consume(ctx, ps.Handle), auth.ErrNoPendingSession)
}

func TestStoreRecordFailureKeepsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ps, err := store.Create(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	n, err := store.RecordFailure(ctx, ps.Handle)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.RecordFailure(ctx, ps.Handle)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, time.Minute, mr.TTL(DefaultKeyPrefix+ps.Handle))

	got, err := store.Get(ctx, ps.Handle)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
}

func TestStoreConsumeIsSingleUse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ps, err := store.Create(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
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

	_, err = store.Get(ctx, ps.Handle)
	assert.ErrorIs(t, err, auth.ErrNoPendingSession)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ps, err := store.Create(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ps.Handle))
	require.NoError(t, store.Delete(ctx, ps.Handle))

	_, err = store.Get(ctx, ps.Handle)
	assert.ErrorIs(t, err, auth.ErrNoPendingSession)
}

func TestStoreKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := New(client, WithKeyPrefix("blog:2fa:"))
	ps, err := store.Create(context.Background(), uuid.New(), 0)
	require.NoError(t, err)

	assert.True(t, mr.Exists("blog:2fa:"+ps.Handle))
	assert.Equal(t, auth.DefaultPendingSessionTTL, mr.TTL("blog:2fa:"+ps.Handle))
}
