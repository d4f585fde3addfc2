package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisGateway хранит записи политик как обычные строки.
// TTL не ставим: запись живет, пока идентичность ее не перезапишет.
type RedisGateway struct {
	rdb *redis.Client
}

func NewRedisGateway(rdb *redis.Client) *RedisGateway {
	return &RedisGateway{rdb: rdb}
}

func (g *RedisGateway) Get(ctx context.Context, key string) (string, error) {
	val, err := g.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis: get %s: %w", key, err)
	}
	return val, nil
}

func (g *RedisGateway) Set(ctx context.Context, key, value string) error {
	if err := g.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (g *RedisGateway) Ping(ctx context.Context) error {
	return g.rdb.Ping(ctx).Err()
}

// Close — no-op: клиентом владеет main, он же его и закрывает
// (тот же клиент обслуживает Pub/Sub и каталог).
func (g *RedisGateway) Close() error {
	return nil
}
