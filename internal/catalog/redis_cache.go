package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/park285/Cheese-CardDuel/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCacheTTL = 6 * time.Hour

// RedisCache is a read-through cache in front of a slower Source.
// Misses from the backing source are not cached.
type RedisCache struct {
	rdb  *redis.Client
	next Source
	ttl  time.Duration
}

func NewRedisCache(rdb *redis.Client, next Source, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{rdb: rdb, next: next, ttl: ttl}
}

func cardKey(id string) string { return "duel:card:" + strings.TrimSpace(id) }

func (c *RedisCache) GetCard(ctx context.Context, id string) (*Card, error) {
	raw, err := c.rdb.Get(ctx, cardKey(id)).Bytes()
	if err == nil {
		var card Card
		if uerr := json.Unmarshal(raw, &card); uerr == nil {
			return &card, nil
		}
		// 깨진 캐시는 버리고 원본에서 다시 읽음
		_ = c.rdb.Del(ctx, cardKey(id)).Err()
	} else if !errors.Is(err, redis.Nil) {
		obslog.L().Warn("card_cache_read_failed", zap.String("card_id", id), zap.Error(err))
	}

	card, err := c.next.GetCard(ctx, id)
	if err != nil { return nil, err }
	if b, merr := json.Marshal(card); merr == nil {
		if serr := c.rdb.Set(ctx, cardKey(id), b, c.ttl).Err(); serr != nil {
			obslog.L().Warn("card_cache_write_failed", zap.String("card_id", id), zap.Error(serr))
		}
	}
	return card, nil
}

// Invalidate drops cached definitions, e.g. after a content update.
func (c *RedisCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 { return nil }
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cardKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
