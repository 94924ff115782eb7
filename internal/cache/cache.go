package cache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is the result of a lookup. Version is the document's invalidation
// counter at read time; a fill after a miss must pass it back to Set.
type Entry struct {
	Outstanding decimal.Decimal
	Found       bool
	Version     int64
}

// BalanceCache memoizes a document's outstanding balance between mutations.
// Writers must call Invalidate after every committed payment, void or removal.
// Invalidate bumps the document's version, and Set drops any fill whose
// version is no longer current, so a value loaded before a mutation never
// lands after its invalidation.
type BalanceCache interface {
	Get(ctx context.Context, documentID string) (Entry, error)
	Set(ctx context.Context, documentID string, outstanding decimal.Decimal, version int64, ttl time.Duration) error
	Invalidate(ctx context.Context, documentIDs ...string) error
}

type NoopBalanceCache struct{}

func (NoopBalanceCache) Get(_ context.Context, _ string) (Entry, error) {
	return Entry{}, nil
}

func (NoopBalanceCache) Set(_ context.Context, _ string, _ decimal.Decimal, _ int64, _ time.Duration) error {
	return nil
}

func (NoopBalanceCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

func balanceKey(documentID string) string {
	return "pos:balance:" + documentID
}

func versionKey(documentID string) string {
	return "pos:balance-version:" + documentID
}
