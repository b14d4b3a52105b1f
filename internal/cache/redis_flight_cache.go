package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/storage"
	"github.com/go-redis/redis/v8"
)

// RedisFlightCache реализует FlightCache используя Redis как Hot Cache.
// При промахе читает из TelemetryRepo (Read-Through), при записи кладёт
// в Redis сразу и асинхронно сохраняет в репозиторий.
type RedisFlightCache struct {
	client      *redis.Client
	config      *Config
	cold        storage.TelemetryRepo
	invalidator CacheInvalidator

	// Статистика
	stats      Stats
	statsMutex sync.RWMutex

	latencySum   int64 // в наносекундах
	latencyCount int64
	maxLatency   int64
}

// NewRedisFlightCache создаёт новый Redis кеш телеметрии.
//
// Параметры:
//
//	config - конфигурация Redis и TTL
//	cold - опциональное постоянное хранилище (может быть nil)
//	invalidator - опциональный invalidator для Pub/Sub (может быть nil)
func NewRedisFlightCache(config *Config, cold storage.TelemetryRepo, invalidator CacheInvalidator) (*RedisFlightCache, error) {
	// Настройки по умолчанию
	if config.KeyPrefix == "" {
		config.KeyPrefix = "telemetry:cache:"
	}
	if config.TTL == 0 {
		config.TTL = 30 * time.Second
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisAddr,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := &RedisFlightCache{
		client:      rdb,
		config:      config,
		cold:        cold,
		invalidator: invalidator,
		stats: Stats{
			LastUpdate: time.Now(),
		},
	}

	// Инвалидации от других узлов выбрасывают запись из Hot Cache
	if invalidator != nil {
		if err := invalidator.SubscribeInvalidations(context.Background(), c.dropHot); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to subscribe to invalidations: %w", err)
		}
	}

	logging.Info("Flight cache initialized: %s (TTL: %v)", config.RedisAddr, config.TTL)
	return c, nil
}

// Get возвращает снимок телеметрии корабля из кеша.
func (c *RedisFlightCache) Get(ctx context.Context, vesselID string) (*storage.TelemetrySnapshot, error) {
	if vesselID == "" {
		return nil, ErrInvalidKey
	}

	start := time.Now()
	defer c.recordLatency(start)

	atomic.AddInt64(&c.stats.TotalRequests, 1)

	val, err := c.client.Get(ctx, c.key(vesselID)).Bytes()
	if err == nil {
		var snap storage.TelemetrySnapshot
		if jsonErr := json.Unmarshal(val, &snap); jsonErr == nil {
			atomic.AddInt64(&c.stats.Hits, 1)
			c.updateHitRatio()
			return &snap, nil
		}
		// Повреждённая запись - выбрасываем и идём в Cold Storage
		c.client.Del(ctx, c.key(vesselID))
	}

	atomic.AddInt64(&c.stats.Misses, 1)

	if err != nil && err != redis.Nil {
		logging.Error("Redis Get error for vessel %s: %v", vesselID, err)
		c.updateHitRatio()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	// Read-Through: пытаемся загрузить из Cold Storage
	if c.cold != nil {
		snap, found, coldErr := c.cold.Load(ctx, vesselID)
		if coldErr == nil && found {
			// Кладём в кеш для следующих запросов
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				c.setHot(ctx, snap)
			}()
			c.updateHitRatio()
			return snap, nil
		}
		if coldErr != nil {
			logging.Debug("Cold storage error for vessel %s: %v", vesselID, coldErr)
		}
	}

	c.updateHitRatio()
	return nil, ErrCacheMiss
}

// Put кладёт снимок в Redis и асинхронно сохраняет в Cold Storage.
func (c *RedisFlightCache) Put(ctx context.Context, snap *storage.TelemetrySnapshot) error {
	if snap == nil || snap.VesselID == "" {
		return ErrInvalidKey
	}

	start := time.Now()
	defer c.recordLatency(start)

	if err := c.setHot(ctx, snap); err != nil {
		return err
	}

	if c.cold != nil {
		cp := *snap
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.cold.Save(ctx, &cp); err != nil {
				logging.Error("Failed to write snapshot to cold storage: %v", err)
			}
		}()
	}

	return nil
}

// Invalidate удаляет снимок из кеша и уведомляет другие узлы.
func (c *RedisFlightCache) Invalidate(ctx context.Context, vesselID string) error {
	if vesselID == "" {
		return ErrInvalidKey
	}

	start := time.Now()
	defer c.recordLatency(start)

	if err := c.client.Del(ctx, c.key(vesselID)).Err(); err != nil {
		logging.Error("Redis Delete error for vessel %s: %v", vesselID, err)
		return fmt.Errorf("redis delete error: %w", err)
	}

	// Рассылаем уведомление об инвалидации
	if c.invalidator != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.invalidator.PublishInvalidation(ctx, vesselID); err != nil {
				logging.Error("Failed to publish invalidation for vessel %s: %v", vesselID, err)
			}
		}()
	}

	return nil
}

// Stats возвращает текущую статистику кеша.
func (c *RedisFlightCache) Stats() *Stats {
	c.updateLatencyStats()

	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()

	stats := c.stats
	stats.LastUpdate = time.Now()
	return &stats
}

// Close закрывает соединение с Redis.
func (c *RedisFlightCache) Close() error {
	if err := c.client.Close(); err != nil {
		logging.Error("Error closing Redis connection: %v", err)
		return err
	}

	logging.Info("Flight cache closed")
	return nil
}

// Внутренние методы

func (c *RedisFlightCache) key(vesselID string) string {
	return c.config.KeyPrefix + vesselID
}

// setHot пишет снимок в Redis с TTL.
func (c *RedisFlightCache) setHot(ctx context.Context, snap *storage.TelemetrySnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key(snap.VesselID), data, c.config.TTL).Err(); err != nil {
		logging.Error("Redis Set error for vessel %s: %v", snap.VesselID, err)
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

// dropHot выбрасывает запись из Hot Cache по уведомлению с другого узла.
func (c *RedisFlightCache) dropHot(vesselID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Del(ctx, c.key(vesselID)).Err()
}

// recordLatency записывает latency операции.
func (c *RedisFlightCache) recordLatency(start time.Time) {
	latency := time.Since(start).Nanoseconds()

	atomic.AddInt64(&c.latencySum, latency)
	atomic.AddInt64(&c.latencyCount, 1)

	for {
		current := atomic.LoadInt64(&c.maxLatency)
		if latency <= current || atomic.CompareAndSwapInt64(&c.maxLatency, current, latency) {
			break
		}
	}
}

// updateLatencyStats пересчитывает среднюю и максимальную latency.
func (c *RedisFlightCache) updateLatencyStats() {
	count := atomic.LoadInt64(&c.latencyCount)
	if count == 0 {
		return
	}

	sum := atomic.LoadInt64(&c.latencySum)
	max := atomic.LoadInt64(&c.maxLatency)

	c.statsMutex.Lock()
	c.stats.AvgLatencyMs = float64(sum) / float64(count) / 1e6 // нс в мс
	c.stats.MaxLatencyMs = float64(max) / 1e6
	c.statsMutex.Unlock()
}

// updateHitRatio обновляет hit ratio в статистике.
func (c *RedisFlightCache) updateHitRatio() {
	hits := atomic.LoadInt64(&c.stats.Hits)
	misses := atomic.LoadInt64(&c.stats.Misses)
	total := hits + misses

	if total > 0 {
		c.statsMutex.Lock()
		c.stats.HitRatio = float64(hits) / float64(total)
		c.statsMutex.Unlock()
	}
}
