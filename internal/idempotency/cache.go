package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache remembers the order number produced for an Idempotency-Key so a
// retried create request returns the original order instead of charging
// twice.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GenerateKey(userID uint, idempotencyKey string) string
}

type redisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) Cache {
	return &redisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *redisCache) GenerateKey(userID uint, idempotencyKey string) string {
	return fmt.Sprintf("orders:create:%d:%s", userID, idempotencyKey)
}
