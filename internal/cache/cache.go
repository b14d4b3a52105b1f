package cache

import (
	"context"
	"time"

	"github.com/annel0/flight-telemetry/internal/storage"
)

// FlightCache определяет интерфейс для кеширования снимков телеметрии.
// Двухуровневая архитектура: Hot Cache (Redis) + Cold Storage (TelemetryRepo).
//
// Использование:
//
//	c := NewRedisFlightCache(config, repo, invalidator)
//	snap, err := c.Get(ctx, "kerbin-1")
//	err = c.Put(ctx, snap)
//	err = c.Invalidate(ctx, "kerbin-1")
type FlightCache interface {
	// Get возвращает снимок телеметрии корабля из кеша.
	// При промахе пытается загрузить из Cold Storage (Read-Through).
	// Возвращает ErrCacheMiss если снимка нет нигде.
	Get(ctx context.Context, vesselID string) (*storage.TelemetrySnapshot, error)

	// Put кладёт снимок в кеш и асинхронно пишет в Cold Storage.
	Put(ctx context.Context, snap *storage.TelemetrySnapshot) error

	// Invalidate удаляет снимок из кеша и рассылает уведомление другим узлам.
	Invalidate(ctx context.Context, vesselID string) error

	// Stats возвращает статистику кеша.
	Stats() *Stats

	// Close закрывает соединение с кешем.
	Close() error
}

// CacheInvalidator рассылает уведомления об инвалидации между узлами через Pub/Sub.
type CacheInvalidator interface {
	// PublishInvalidation отправляет уведомление об инвалидации корабля.
	PublishInvalidation(ctx context.Context, vesselID string) error

	// SubscribeInvalidations подписывается на уведомления об инвалидации.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	// Close закрывает соединение.
	Close() error
}

// InvalidationHandler обрабатывает уведомление об инвалидации кеша.
type InvalidationHandler func(vesselID string) error

// Stats содержит статистику работы кеша.
type Stats struct {
	TotalRequests int64   `json:"total_requests"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	LastUpdate time.Time `json:"last_update"`
}

// Config содержит конфигурацию кеша телеметрии.
type Config struct {
	RedisAddr     string `yaml:"redis_addr" env:"TELEMETRY_CACHE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"TELEMETRY_CACHE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"TELEMETRY_CACHE_REDIS_DB"`

	KeyPrefix string        `yaml:"key_prefix" env:"TELEMETRY_CACHE_KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TELEMETRY_CACHE_TTL"`

	MaxConnections int           `yaml:"max_connections" env:"TELEMETRY_CACHE_MAX_CONNECTIONS"`
	PoolTimeout    time.Duration `yaml:"pool_timeout" env:"TELEMETRY_CACHE_POOL_TIMEOUT"`
}

// Ошибки кеша
var (
	ErrCacheMiss  = NewCacheError("cache miss")
	ErrInvalidKey = NewCacheError("invalid vessel id")
)

// CacheError представляет ошибку кеша.
type CacheError struct {
	Message string
}

func (e *CacheError) Error() string {
	return e.Message
}

func NewCacheError(message string) *CacheError {
	return &CacheError{Message: message}
}

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}
