package recommender

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// JSONCache 推荐缓存所需的最小接口，由 internal/cache.Manager 实现
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheObserver 记录缓存命中情况，由 internal/metrics.Collector 实现
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const cacheType = "recommender"

// CachedRecommender 以请求摘要为键缓存预测结果。
// 缓存读写失败时直接回落到内部推荐器。
// 带事件的请求按当前时间衰减打分，不进入缓存。
type CachedRecommender struct {
	inner    Recommender
	cache    JSONCache
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger
}

// NewCachedRecommender 包装推荐器
func NewCachedRecommender(inner Recommender, cache JSONCache, ttl time.Duration, logger *zap.Logger) *CachedRecommender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRecommender{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "cached_recommender")),
	}
}

// WithObserver 设置缓存观测者
func (c *CachedRecommender) WithObserver(o CacheObserver) *CachedRecommender {
	c.observer = o
	return c
}

// Predict implements Recommender.
func (c *CachedRecommender) Predict(ctx context.Context, req Request) (*Prediction, error) {
	if len(req.Events) > 0 {
		return c.inner.Predict(ctx, req)
	}
	key, err := RequestKey(req)
	if err != nil {
		return c.inner.Predict(ctx, req)
	}

	var cached Prediction
	if err := c.cache.GetJSON(ctx, key, &cached); err == nil {
		if c.observer != nil {
			c.observer.RecordCacheHit(cacheType)
		}
		return &cached, nil
	}
	if c.observer != nil {
		c.observer.RecordCacheMiss(cacheType)
	}

	pred, err := c.inner.Predict(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetJSON(ctx, key, pred, c.ttl); err != nil {
		c.logger.Warn("failed to cache prediction", zap.String("key", key), zap.Error(err))
	}
	return pred, nil
}

// RequestKey 计算请求的缓存键。
// encoding/json 对 map 键排序，因此相同请求得到相同摘要。
func RequestKey(req Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "recommender:" + hex.EncodeToString(sum[:]), nil
}
