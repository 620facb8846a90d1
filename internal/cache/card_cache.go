package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// keyPrefix 缓存键前缀
const keyPrefix = "harvest_card:"

// DefaultTTL 默认缓存时间
const DefaultTTL = 5 * time.Minute

// TombstoneTTL 失效标记的保留时间,期间 Set 不会回填
// 必须大于一次数据库查询到回填之间的耗时
const TombstoneTTL = 30 * time.Second

// tombstone 失效标记,不是合法的 JSON 记录
const tombstone = "!invalidated"

// CardCache 核验查询缓存接口
// Get 未命中时返回 (nil, nil)
// Invalidate 之后的 TombstoneTTL 内 Set 不生效,避免并发读取把旧记录写回
type CardCache interface {
	Get(ctx context.Context, cardID string) (*model.HarvestCardModel, error)
	Set(ctx context.Context, card *model.HarvestCardModel) error
	Invalidate(ctx context.Context, cardID string) error
}

// RedisCardCache 基于 Redis 的收获卡缓存
type RedisCardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCardCache 创建 Redis 缓存
func NewRedisCardCache(client *redis.Client, ttl time.Duration) *RedisCardCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCardCache{client: client, ttl: ttl}
}

// Connect 根据配置连接 Redis
func Connect(cfg config.CacheConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opt.MaxRetries = 3

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// New 根据配置创建缓存,未启用或连接失败时退化为不缓存
func New(cfg config.CacheConfig, logger logrus.FieldLogger) (CardCache, *redis.Client) {
	if !cfg.Enabled {
		return NopCardCache{}, nil
	}
	client, err := Connect(cfg)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, lookup cache disabled")
		return NopCardCache{}, nil
	}
	logger.WithField("redis_addr", client.Options().Addr).Info("Lookup cache connected")
	return NewRedisCardCache(client, time.Duration(cfg.TTLSeconds)*time.Second), client
}

func cacheKey(cardID string) string {
	return keyPrefix + cardID
}

// Get 读取缓存
func (c *RedisCardCache) Get(ctx context.Context, cardID string) (*model.HarvestCardModel, error) {
	data, err := c.client.Get(ctx, cacheKey(cardID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	if string(data) == tombstone {
		return nil, nil
	}

	var card model.HarvestCardModel
	if err := json.Unmarshal(data, &card); err != nil {
		// 损坏的缓存直接丢弃
		_ = c.client.Del(ctx, cacheKey(cardID)).Err()
		return nil, nil
	}
	return &card, nil
}

// Set 写入缓存,仅缓存有效记录
// 键已存在(包括失效标记)时不覆盖
func (c *RedisCardCache) Set(ctx context.Context, card *model.HarvestCardModel) error {
	if card == nil || !card.IsActive {
		return nil
	}
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to encode card: %w", err)
	}
	if err := c.client.SetNX(ctx, cacheKey(card.CardID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Invalidate 用失效标记替换缓存
func (c *RedisCardCache) Invalidate(ctx context.Context, cardID string) error {
	if err := c.client.Set(ctx, cacheKey(cardID), tombstone, TombstoneTTL).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// NopCardCache 不缓存
type NopCardCache struct{}

// Get 始终未命中
func (NopCardCache) Get(context.Context, string) (*model.HarvestCardModel, error) { return nil, nil }

// Set 忽略
func (NopCardCache) Set(context.Context, *model.HarvestCardModel) error { return nil }

// Invalidate 忽略
func (NopCardCache) Invalidate(context.Context, string) error { return nil }
