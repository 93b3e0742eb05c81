package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	locker := NewLocalLocker()
	var inside, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "loan:1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Empty(t, locker.slots)
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	locker := NewLocalLocker()
	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Empty(t, locker.slots)
}
