package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	replayPending   = "pending"
	replayDelivered = "delivered"
)

// ReplayProtector tracks push deliveries per event. A claim is short lived so
// that a worker dying mid-delivery does not block the retry; a confirmed
// delivery is remembered for the full replay window.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Confirm(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisReplayProtector keeps the delivery state in one Redis string per event.
type RedisReplayProtector struct {
	Client *redis.Client
}

// Acquire claims key for ttl. It fails when the event is being delivered or
// was delivered already.
func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, key, replayPending, ttl).Result()
}

// Confirm marks key delivered for ttl.
func (r RedisReplayProtector) Confirm(ctx context.Context, key string, ttl time.Duration) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Set(ctx, key, replayDelivered, ttl).Err()
}

// Release drops the claim so the event can be delivered again.
func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
