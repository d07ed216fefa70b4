package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/lock"
)

func newLocker(t *testing.T, wait time.Duration) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond, Wait: wait}, mr
}

func TestWithLockSerialisesHolders(t *testing.T) {
	locker, _ := newLocker(t, time.Second)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		holders int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "lock:cart:demo", time.Second, func(context.Context) error {
				mu.Lock()
				holders++
				peak = max(peak, holders)
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				holders--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, peak)
}

func TestWithLockBusyAfterWait(t *testing.T) {
	locker, mr := newLocker(t, 20*time.Millisecond)
	require.NoError(t, mr.Set("lock:cart:busy", "someone-else"))

	called := false
	err := locker.WithLock(context.Background(), "lock:cart:busy", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrBusy)
	require.False(t, called)
	v, err := mr.Get("lock:cart:busy")
	require.NoError(t, err)
	require.Equal(t, "someone-else", v)
}

func TestWithLockHonoursContext(t *testing.T) {
	locker, mr := newLocker(t, 0)
	require.NoError(t, mr.Set("lock:cart:held", "other"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "lock:cart:held", time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker, mr := newLocker(t, 0)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "lock:cart:1", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("lock:cart:1"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("lock:cart:1"))
}

func TestWithLockKeepsLockTakenOverAfterExpiry(t *testing.T) {
	locker, mr := newLocker(t, 0)

	err := locker.WithLock(context.Background(), "lock:cart:2", time.Second, func(context.Context) error {
		require.NoError(t, mr.Set("lock:cart:2", "new-owner"))
		return nil
	})
	require.NoError(t, err)
	v, err := mr.Get("lock:cart:2")
	require.NoError(t, err)
	require.Equal(t, "new-owner", v)
}

func TestWithLockUnconfigured(t *testing.T) {
	require.Error(t, lock.Locker{}.WithLock(context.Background(), "k", time.Second, func(context.Context) error { return nil }))
}
