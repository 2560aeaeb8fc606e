package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayProtector claims an event id before delivery so a restarted or duplicated worker
// does not post the same event twice within the TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const replayKeyPrefix = "wh:cart:"

func replayKey(eventID string) string {
	return replayKeyPrefix + eventID
}

// RedisReplayProtector keeps claims as Redis keys holding the claim time. A nil client
// claims everything.
type RedisReplayProtector struct {
	Client *redis.Client
}

func (r RedisReplayProtector) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	claimed := time.Now().UTC().Format(time.RFC3339Nano)
	return r.Client.SetNX(ctx, key, claimed, ttl).Result()
}

func (r RedisReplayProtector) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}
