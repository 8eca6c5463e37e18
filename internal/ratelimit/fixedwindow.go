package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// FixedWindow adapts a ulule limiter to Allower. The rate is fixed at
// construction; the window and max passed to Allow are ignored.
type FixedWindow struct {
	Limiter *limiter.Limiter
}

// NewFixedWindow parses a rate such as "10-M" and binds it to store.
func NewFixedWindow(store limiter.Store, formatted string) (FixedWindow, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return FixedWindow{}, fmt.Errorf("ratelimit: parse rate %q: %w", formatted, err)
	}
	return FixedWindow{Limiter: limiter.New(store, rate)}, nil
}

// NewRedisStore wires a limiter store backed by Redis.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// Limit reports the configured number of events per period.
func (f FixedWindow) Limit() int {
	if f.Limiter == nil {
		return 0
	}
	return int(f.Limiter.Rate.Limit)
}

// Allow implements Allower.
func (f FixedWindow) Allow(ctx context.Context, key string, _ time.Duration, _ int) (bool, int, time.Time, error) {
	if f.Limiter == nil {
		return true, 0, time.Now(), nil
	}
	res, err := f.Limiter.Get(ctx, key)
	if err != nil {
		return false, 0, time.Now(), err
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
