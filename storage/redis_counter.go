package storage

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const rotationKey = "dealtracker:rotation"

// RedisCounter is a rotation counter shared by every process pointed at the same Redis
type RedisCounter struct {
	client *redis.Client
	key    string
}

// NewRedisCounter connects using a redis:// URL
func NewRedisCounter(ctx context.Context, redisURL string) (*RedisCounter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisCounter{client: client, key: rotationKey}, nil
}

// Incr atomically advances the shared index
func (c *RedisCounter) Incr(ctx context.Context) (int64, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", c.key, err)
	}
	return n, nil
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}
