package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotObtained = errors.New("lock not obtained")

type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes work on one key, such as a cashier's session row, across callers.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Local is an in-process Locker. It waits up to wait for the key before giving up.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

func NewLocal(wait time.Duration) *Local {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Local{slots: make(map[string]chan struct{}), wait: wait}
}

func (l *Local) Obtain(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return &localLease{slot: slot}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrNotObtained
	}
}

type localLease struct {
	once sync.Once
	slot chan struct{}
}

func (l *localLease) Release(_ context.Context) error {
	l.once.Do(func() { <-l.slot })
	return nil
}
