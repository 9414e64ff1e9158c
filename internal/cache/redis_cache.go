package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/world-persist/internal/logging"
	"github.com/annel0/world-persist/internal/store"
)

// CacheConfig конфигурация Redis кеша чанков.
type CacheConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration // время жизни ключа чанка
}

// RedisChunkCache реализует ChunkCache поверх Redis.
//
// Ключи:
//
//	blocks:p:q -> JSON []store.BlockRow
//	lights:p:q -> JSON []store.BlockRow
//
// Ошибки Redis не поднимаются к читателю: логируются и считаются промахом.
type RedisChunkCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   int64
	misses int64
}

// NewRedisChunkCache создает кеш и проверяет соединение с Redis.
func NewRedisChunkCache(config CacheConfig) (*RedisChunkCache, error) {
	if config.TTL == 0 {
		config.TTL = 30 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	logging.Info("Redis chunk cache инициализирован: %s (TTL %s)", config.RedisURL, config.TTL)
	return &RedisChunkCache{client: rdb, ttl: config.TTL}, nil
}

func blocksKey(p, q int) string { return fmt.Sprintf("blocks:%d:%d", p, q) }
func lightsKey(p, q int) string { return fmt.Sprintf("lights:%d:%d", p, q) }

// getRows общая выборка и десериализация списка строк чанка.
func (c *RedisChunkCache) getRows(ctx context.Context, key string) ([]store.BlockRow, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if err != nil {
		logging.Warn("Redis get %s: %v", key, err)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var rows []store.BlockRow
	if err := json.Unmarshal(data, &rows); err != nil {
		logging.Warn("Redis: некорректное значение ключа %s: %v", key, err)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return rows, true
}

// setRows сериализует и кеширует список строк чанка.
func (c *RedisChunkCache) setRows(ctx context.Context, key string, rows []store.BlockRow) {
	data, err := json.Marshal(rows)
	if err != nil {
		logging.Warn("Redis: ошибка сериализации %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logging.Warn("Redis set %s: %v", key, err)
	}
}

func (c *RedisChunkCache) GetBlocks(ctx context.Context, p, q int) ([]store.BlockRow, bool) {
	return c.getRows(ctx, blocksKey(p, q))
}

func (c *RedisChunkCache) SetBlocks(ctx context.Context, p, q int, rows []store.BlockRow) {
	c.setRows(ctx, blocksKey(p, q), rows)
}

func (c *RedisChunkCache) GetLights(ctx context.Context, p, q int) ([]store.BlockRow, bool) {
	return c.getRows(ctx, lightsKey(p, q))
}

func (c *RedisChunkCache) SetLights(ctx context.Context, p, q int, rows []store.BlockRow) {
	c.setRows(ctx, lightsKey(p, q), rows)
}

// Invalidate сбрасывает ключи чанка после применения записи worker-ом.
func (c *RedisChunkCache) Invalidate(ctx context.Context, p, q int) {
	if err := c.client.Del(ctx, blocksKey(p, q), lightsKey(p, q)).Err(); err != nil {
		logging.Warn("Redis del chunk(%d,%d): %v", p, q, err)
	}
}

// HitRatio возвращает долю попаданий (для диагностики).
func (c *RedisChunkCache) HitRatio() float64 {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (c *RedisChunkCache) Close() error {
	return c.client.Close()
}
