package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisActivityCounterStore tracks suspicious-activity observations per IP
// and activity type in Redis counters with a rolling-window TTL.
type RedisActivityCounterStore struct {
	client *redis.Client
}

// NewRedisActivityCounterStore creates a counter store backed by Redis.
func NewRedisActivityCounterStore(client *redis.Client) *RedisActivityCounterStore {
	return &RedisActivityCounterStore{client: client}
}

func activityKey(ip, activity string) string {
	return "security:activity:" + activity + ":" + ip
}

// Increment bumps the counter and refreshes the window TTL so a burst of
// observations keeps the window open while quiet IPs age out on their own.
func (s *RedisActivityCounterStore) Increment(ctx context.Context, ip string, activity string, window time.Duration) (int64, error) {
	key := activityKey(ip, activity)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if window <= 0 {
		window = time.Hour
	}
	_ = s.client.Expire(ctx, key, window).Err()
	return count, nil
}

func (s *RedisActivityCounterStore) Get(ctx context.Context, ip string, activity string) (int64, error) {
	raw, err := s.client.Get(ctx, activityKey(ip, activity)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	count, convErr := strconv.ParseInt(raw, 10, 64)
	if convErr != nil {
		return 0, convErr
	}
	return count, nil
}

func (s *RedisActivityCounterStore) Reset(ctx context.Context, ip string, activity string) error {
	return s.client.Del(ctx, activityKey(ip, activity)).Err()
}
