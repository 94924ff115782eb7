package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// versionTTL outlives any balance TTL so a version never resets under an
// in-flight fill.
const versionTTL = 24 * time.Hour

type RedisBalanceCache struct {
	client *redis.Client
}

func NewRedisBalanceCache(addr string, password string, db int) *RedisBalanceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBalanceCache{client: client}
}

func (c *RedisBalanceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

// Client exposes the connection so the session locker can share it.
func (c *RedisBalanceCache) Client() *redis.Client {
	return c.client
}

func (c *RedisBalanceCache) Get(ctx context.Context, documentID string) (Entry, error) {
	vals, err := c.client.MGet(ctx, balanceKey(documentID), versionKey(documentID)).Result()
	if err != nil {
		return Entry{}, err
	}

	var out Entry
	if raw, ok := vals[1].(string); ok {
		out.Version, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Entry{}, err
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return out, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		// Corrupt entry; drop it so the next read recomputes.
		_ = c.client.Del(ctx, balanceKey(documentID)).Err()
		return out, nil
	}
	out.Outstanding = amount
	out.Found = true
	return out, nil
}

// setIfCurrent writes the balance only while the version key still holds
// the version the caller read before loading it.
var setIfCurrent = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

func (c *RedisBalanceCache) Set(ctx context.Context, documentID string, outstanding decimal.Decimal, version int64, ttl time.Duration) error {
	if documentID == "" {
		return nil
	}
	keys := []string{balanceKey(documentID), versionKey(documentID)}
	return setIfCurrent.Run(ctx, c.client, keys, strconv.FormatInt(version, 10), outstanding.String(), ttl.Milliseconds()).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, documentIDs ...string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range documentIDs {
			pipe.Incr(ctx, versionKey(id))
			pipe.Expire(ctx, versionKey(id), versionTTL)
			pipe.Del(ctx, balanceKey(id))
		}
		return nil
	})
	return err
}
