package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

const linkCachePrefix = "link:"

// linkCache is a read-through Redis cache of links keyed by short code. A nil
// *linkCache is valid and caches nothing.
type linkCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func newLinkCache(client *redis.Client, ttl time.Duration) *linkCache {
	if client == nil {
		return nil
	}
	return &linkCache{
		client: client,
		ttl:    ttl,
		logger: zap.L().With(zap.String("component", "LinkCache")),
	}
}

func (c *linkCache) get(ctx context.Context, code string) (*model.Link, bool) {
	if c == nil {
		return nil, false
	}

	val, err := c.client.Get(ctx, linkCachePrefix+code).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Cache error", zap.Error(err), zap.String("short_code", code))
		}
		metrics.CacheMissesTotal.WithLabelValues("link").Inc()
		return nil, false
	}

	var link model.Link
	if err := json.Unmarshal(val, &link); err != nil {
		c.logger.Warn("Discarding corrupt cache entry", zap.Error(err), zap.String("short_code", code))
		c.evict(ctx, code)
		metrics.CacheMissesTotal.WithLabelValues("link").Inc()
		return nil, false
	}

	metrics.CacheHitsTotal.WithLabelValues("link").Inc()
	return &link, true
}

func (c *linkCache) set(ctx context.Context, link *model.Link) {
	if c == nil {
		return
	}

	val, err := json.Marshal(link)
	if err != nil {
		c.logger.Warn("Failed to encode link for cache", zap.Error(err), zap.String("short_code", link.ShortCode))
		return
	}
	if err := c.client.Set(ctx, linkCachePrefix+link.ShortCode, val, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache link", zap.Error(err), zap.String("short_code", link.ShortCode))
	}
}

func (c *linkCache) evict(ctx context.Context, code string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, linkCachePrefix+code).Err(); err != nil {
		c.logger.Warn("Failed to evict cached link", zap.Error(err), zap.String("short_code", code))
	}
}

func (c *linkCache) close() {
	if c == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		c.logger.Warn("Failed to close redis client", zap.Error(err))
	}
}
