// Package cache holds the redis client and the distributed lock built on it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loanflow/config"
	"loanflow/utils"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when a key stays locked past the caller's deadline
var ErrLockBusy = errors.New("lock held by another worker")

// NewClient connects to redis and checks the connection
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Redis.Address, err)
	}
	return rdb, nil
}

// RedisLocker grants exclusion across service instances. Locks expire after
// ttl so a crashed holder cannot block a key forever.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker wraps a redis client
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock waits for key until ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", key, ErrLockBusy)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return releaser(key, lock.Release), nil
}

// releaser frees the key on a fresh context so a cancelled request still
// unlocks. A failed release leaves the key until its ttl runs out.
func releaser(key string, release func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(ctx); err != nil {
			utils.LogFailure("cache", "Lock", "release "+key, nil, err)
		}
	}
}
