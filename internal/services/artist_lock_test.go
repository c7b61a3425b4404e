package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratedarts/fulfillment/internal/config"
)

func TestLocalArtistLocker(t *testing.T) {
	locker := NewLocalArtistLocker()

	t.Run("serializes the same artist", func(t *testing.T) {
		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(context.Background(), 1)
				require.NoError(t, err)
				defer unlock()

				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
	})

	t.Run("different artists do not block", func(t *testing.T) {
		unlock1, err := locker.Lock(context.Background(), 10)
		require.NoError(t, err)
		defer unlock1()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		unlock2, err := locker.Lock(ctx, 11)
		require.NoError(t, err)
		unlock2()
	})

	t.Run("waiting honours context", func(t *testing.T) {
		unlock, err := locker.Lock(context.Background(), 20)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, 20)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		// Double unlock is harmless
		unlock()
		unlock()

		again, err := locker.Lock(context.Background(), 20)
		require.NoError(t, err)
		again()
	})
}

func TestRedisArtistLocker_Unreachable(t *testing.T) {
	_, err := NewRedisArtistLocker(config.RedisConfig{Host: "127.0.0.1", Port: "1", LockTTL: 5})
	assert.Error(t, err)
}

func newMiniRedisLocker(t *testing.T, ttl time.Duration) (*RedisArtistLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisArtistLockerWithClient(client, ttl), mr
}

func TestRedisArtistLocker_Exclusive(t *testing.T) {
	locker, mr := newMiniRedisLocker(t, time.Minute)

	unlock, err := locker.Lock(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, mr.Exists("fulfillment:artist-lock:7"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.False(t, mr.Exists("fulfillment:artist-lock:7"))

	again, err := locker.Lock(context.Background(), 7)
	require.NoError(t, err)
	again()
}

func TestRedisArtistLocker_RenewsWhileHeld(t *testing.T) {
	ttl := 600 * time.Millisecond
	locker, mr := newMiniRedisLocker(t, ttl)
	key := "fulfillment:artist-lock:8"

	unlock, err := locker.Lock(context.Background(), 8)
	require.NoError(t, err)

	// Bring the key close to expiry, then let the holder extend it
	mr.FastForward(500 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL(key) > 300*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond)

	// Past the original TTL the lock is still held
	mr.FastForward(500 * time.Millisecond)
	require.True(t, mr.Exists(key))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, 8)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists(key))
}

func TestRedisArtistLocker_StopsRenewingLostLock(t *testing.T) {
	locker, mr := newMiniRedisLocker(t, 300*time.Millisecond)
	key := "fulfillment:artist-lock:9"

	unlock, err := locker.Lock(context.Background(), 9)
	require.NoError(t, err)

	// Another holder took over after expiry
	require.NoError(t, mr.Set(key, "someone-else"))
	time.Sleep(250 * time.Millisecond)

	unlock()
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
