package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/RainBowCreation/LangCategory/internal/domain"
	"github.com/RainBowCreation/LangCategory/internal/infra"
)

// RedisSet — справочник категорий в Redis-множестве, общий для всех инстансов.
type RedisSet struct {
	rdb    *redis.Client
	key    string
	logger *zap.Logger
}

func NewRedisSet(rdb *redis.Client, logger *zap.Logger) *RedisSet {
	return &RedisSet{
		rdb:    rdb,
		key:    infra.RedisKeyCatalogSet,
		logger: logger.Named("catalog"),
	}
}

func (c *RedisSet) Categories(ctx context.Context) ([]string, error) {
	vals, err := c.rdb.SMembers(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", c.key, err)
	}

	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = domain.NormCategory(v); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Seed заливает список из конфига в Redis, если множество еще пусто.
// Выполняется на старте каждого инстанса; распределенная блокировка (SetNX)
// гарантирует, что заливает только один.
func (c *RedisSet) Seed(ctx context.Context, cats []string) error {
	if len(cats) == 0 {
		return nil
	}

	ok, err := c.rdb.SetNX(ctx, infra.RedisKeyLockCatalog, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой инстанс уже заливает
	}

	count, err := c.rdb.SCard(ctx, c.key).Result()
	if err != nil {
		count = 0
		c.logger.Warn("could not check catalog set size, proceeding with seed",
			zap.String("key", c.key), zap.Error(err))
	}

	if count > 0 {
		return nil // Справочник уже наполнен
	}

	c.logger.Info("catalog set is empty, seeding from config...",
		zap.String("key", c.key), zap.Int("count", len(cats)))

	pipe := c.rdb.Pipeline()
	for _, cat := range cats {
		if cat = domain.NormCategory(cat); cat != "" {
			pipe.SAdd(ctx, c.key, cat)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}
