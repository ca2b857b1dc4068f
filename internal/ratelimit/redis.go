package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each window in a sorted set scored by unix millis so
// several relay instances share one view of a conversation's rate.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "molebot:rate:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Record(ctx context.Context, key string, now time.Time, window time.Duration, capacity int) (int, int, error) {
	k := s.prefix + key
	cutoff := now.Add(-window).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
	beforeCmd := pipe.ZCard(ctx, k)
	pipe.ZAdd(ctx, k, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	// keep only the newest capacity members
	pipe.ZRemRangeByRank(ctx, k, 0, int64(-capacity-1))
	afterCmd := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis rate window %s: %w", key, err)
	}
	return int(beforeCmd.Val()), int(afterCmd.Val()), nil
}
