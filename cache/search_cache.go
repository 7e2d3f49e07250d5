package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"LazyDJ/logger"
	"LazyDJ/model"

	"github.com/redis/go-redis/v9"
)

const searchKeyPrefix = "lazydj:search"

// SearchCache 搜索结果缓存。
// 派对上很多人会搜同一首歌，缓存能省掉大量重复的上游请求。
// Redis 未配置时所有操作都是空操作。
type SearchCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSearchCache 创建搜索缓存，client 可以为 nil
func NewSearchCache(client *redis.Client, ttl time.Duration) *SearchCache {
	return &SearchCache{client: client, ttl: ttl}
}

func (c *SearchCache) key(query string, limit int) string {
	return fmt.Sprintf("%s:%s:%d", searchKeyPrefix, query, limit)
}

// Get 读取缓存的搜索结果，未命中返回 nil
func (c *SearchCache) Get(ctx context.Context, query string, limit int) []model.Track {
	if c.client == nil {
		return nil
	}

	data, err := c.client.Get(ctx, c.key(query, limit)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("读取搜索缓存失败", logger.ErrorField(err))
		}
		return nil
	}

	var tracks []model.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		logger.Warn("解析搜索缓存失败", logger.ErrorField(err))
		return nil
	}
	return tracks
}

// Set 写入搜索结果，失败只记日志
func (c *SearchCache) Set(ctx context.Context, query string, limit int, tracks []model.Track) {
	if c.client == nil {
		return
	}

	data, err := json.Marshal(tracks)
	if err != nil {
		logger.Warn("序列化搜索缓存失败", logger.ErrorField(err))
		return
	}
	if err := c.client.Set(ctx, c.key(query, limit), data, c.ttl).Err(); err != nil {
		logger.Warn("写入搜索缓存失败", logger.ErrorField(err))
	}
}
