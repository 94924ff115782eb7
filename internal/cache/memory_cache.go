package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryEntry struct {
	value     decimal.Decimal
	expiresAt time.Time
}

// MemoryBalanceCache is a process-local BalanceCache for single-node deployments.
type MemoryBalanceCache struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	versions map[string]int64
	now      func() time.Time
}

func NewMemoryBalanceCache() *MemoryBalanceCache {
	return &MemoryBalanceCache{
		entries:  make(map[string]memoryEntry),
		versions: make(map[string]int64),
		now:      time.Now,
	}
}

func (c *MemoryBalanceCache) Get(_ context.Context, documentID string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Entry{Version: c.versions[documentID]}
	entry, ok := c.entries[balanceKey(documentID)]
	if !ok {
		return out, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.entries, balanceKey(documentID))
		return out, nil
	}
	out.Outstanding = entry.value
	out.Found = true
	return out, nil
}

func (c *MemoryBalanceCache) Set(_ context.Context, documentID string, outstanding decimal.Decimal, version int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[documentID] != version {
		return nil
	}
	entry := memoryEntry{value: outstanding}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[balanceKey(documentID)] = entry
	return nil
}

func (c *MemoryBalanceCache) Invalidate(_ context.Context, documentIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range documentIDs {
		c.versions[id]++
		delete(c.entries, balanceKey(id))
	}
	return nil
}
