// internal/services/artist_lock.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ratedarts/fulfillment/internal/config"
)

// ArtistLocker serializes product creation per artist so the SKU suffix,
// derived from the artist's product count, cannot be computed twice.
type ArtistLocker interface {
	Lock(ctx context.Context, artistID uint) (unlock func(), err error)
}

// LocalArtistLocker is an in-process keyed mutex.
type LocalArtistLocker struct {
	mu    sync.Mutex
	locks map[uint]chan struct{}
}

func NewLocalArtistLocker() *LocalArtistLocker {
	return &LocalArtistLocker{locks: make(map[uint]chan struct{})}
}

func (l *LocalArtistLocker) Lock(ctx context.Context, artistID uint) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[artistID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[artistID] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisArtistLocker holds the lock in Redis so several instances share it.
// Acquisition uses SETNX with a TTL; release only deletes our own token.
// While held, the TTL is extended every third of its length so a slow
// request keeps the lock; the TTL only bounds a crashed holder.
type RedisArtistLocker struct {
	client        *redis.Client
	keyPrefix     string
	ttl           time.Duration
	pollInterval  time.Duration
	renewInterval time.Duration
}

func NewRedisArtistLocker(cfg config.RedisConfig) (*RedisArtistLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisArtistLockerWithClient(client, time.Duration(cfg.LockTTL)*time.Second), nil
}

func NewRedisArtistLockerWithClient(client *redis.Client, ttl time.Duration) *RedisArtistLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisArtistLocker{
		client:        client,
		keyPrefix:     "fulfillment:artist-lock:",
		ttl:           ttl,
		pollInterval:  100 * time.Millisecond,
		renewInterval: ttl / 3,
	}
}

func (l *RedisArtistLocker) Lock(ctx context.Context, artistID uint) (func(), error) {
	key := fmt.Sprintf("%s%d", l.keyPrefix, artistID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire artist lock: %w", err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go l.keepAlive(key, token, stop, done)

			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					l.release(key, token)
				})
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// keepAlive extends the key's TTL until stop is closed or the token is no
// longer ours.
func (l *RedisArtistLocker) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.renewInterval)
			renewed, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && renewed == 0 {
				return
			}
		}
	}
}

func (l *RedisArtistLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// An expired lock is released by its TTL
	_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}

func (l *RedisArtistLocker) Close() error {
	return l.client.Close()
}
