package storage

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client, err := ConnectRedis(context.Background(), addr)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestSetIdempotency(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "test:" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	ok, err := adapter.SetIdempotency(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.SetIdempotency(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLock_MutualExclusion(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "loan:" + uuid.NewString()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := adapter.Lock(ctx, key)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLock_ContextCancelled(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	adapter := NewRedisAdapter(client)
	key := "loan:" + uuid.NewString()

	unlock, err := adapter.Lock(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = adapter.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnlock_DoesNotFreeForeignLock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "loan:" + uuid.NewString()
	defer client.Del(ctx, lockKeyPrefix+key)

	unlock, err := adapter.Lock(ctx, key)
	require.NoError(t, err)

	// simulate expiry and takeover by another holder
	require.NoError(t, client.Set(ctx, lockKeyPrefix+key, "someone-else", time.Minute).Err())
	unlock()

	holder, err := client.Get(ctx, lockKeyPrefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", holder)
}

func TestLock_UnlockFailureIsLogged(t *testing.T) {
	client := getRedisClient(t)

	ctx := context.Background()
	var logs bytes.Buffer
	adapter := NewRedisAdapter(client, WithRedisLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	key := "loan:" + uuid.NewString()
	defer func() {
		cleanup, err := ConnectRedis(ctx, client.Options().Addr)
		if err == nil {
			cleanup.Del(ctx, lockKeyPrefix+key)
			cleanup.Close()
		}
	}()

	unlock, err := adapter.Lock(ctx, key)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	unlock()

	assert.Contains(t, logs.String(), "release lock failed")
	assert.Contains(t, logs.String(), key)
}
