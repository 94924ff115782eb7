package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

const redisRetryStep = 50 * time.Millisecond

// Redis is a Locker backed by bsm/redislock so terminals on different nodes share keys.
type Redis struct {
	client *redislock.Client
	wait   time.Duration
}

func NewRedis(client redislock.RedisClient, wait time.Duration) *Redis {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Redis{client: redislock.New(client), wait: wait}
}

func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	attempts := int(r.wait / redisRetryStep)
	if attempts < 1 {
		attempts = 1
	}
	held, err := r.client.Obtain(ctx, "pos:lock:"+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(redisRetryStep), attempts),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return redisLease{lock: held}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// TTL already expired; nothing left to release.
		return nil
	}
	return err
}
