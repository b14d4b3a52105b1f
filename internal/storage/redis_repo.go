package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr         string        // Адрес Redis сервера
	Password     string        // Пароль (пустой если не требуется)
	DB           int           // Номер базы данных
	KeyPrefix    string        // Префикс для ключей
	TTL          time.Duration // Время жизни записей
	HistoryDepth int64         // Глубина списка истории на корабль
	BatchSize    int           // Размер батча для записи
	BatchFlushMs int           // Интервал сброса батча в миллисекундах
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		KeyPrefix:    "telemetry:vessel:",
		TTL:          5 * time.Minute,
		HistoryDepth: 4096,
		BatchSize:    100,
		BatchFlushMs: 100,
	}
}

// RedisTelemetryRepo хранит телеметрию кораблей в Redis для быстрого доступа.
// Последний снимок лежит под ключом <prefix><vesselID>, история - в списке
// <prefix><vesselID>:hist, обрезаемом по HistoryDepth.
type RedisTelemetryRepo struct {
	client       *redis.Client
	keyPrefix    string
	ttl          time.Duration
	historyDepth int64
	batchSize    int
	batchMu      sync.Mutex
	batchBuffer  map[string]*TelemetrySnapshot
	batchTicker  *time.Ticker
	shutdown     chan struct{}
	wg           sync.WaitGroup
}

// NewRedisTelemetryRepo создаёт новый Redis репозиторий телеметрии.
func NewRedisTelemetryRepo(config *RedisConfig) (*RedisTelemetryRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Проверяем подключение
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	repo := &RedisTelemetryRepo{
		client:       client,
		keyPrefix:    config.KeyPrefix,
		ttl:          config.TTL,
		historyDepth: config.HistoryDepth,
		batchSize:    config.BatchSize,
		batchBuffer:  make(map[string]*TelemetrySnapshot),
		batchTicker:  time.NewTicker(time.Duration(config.BatchFlushMs) * time.Millisecond),
		shutdown:     make(chan struct{}),
	}

	// Запускаем фоновую горутину для сброса батчей
	repo.wg.Add(1)
	go repo.batchFlusher()

	logging.Info("🔴 Connected to Redis at %s", config.Addr)
	return repo, nil
}

// Save сохраняет снимок телеметрии через батч-буфер.
func (r *RedisTelemetryRepo) Save(ctx context.Context, snap *TelemetrySnapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	cp := *snap

	// Добавляем в батч-буфер
	r.batchMu.Lock()
	r.batchBuffer[snap.VesselID] = &cp

	// Если буфер заполнен, сбрасываем немедленно
	if len(r.batchBuffer) >= r.batchSize {
		batch := r.batchBuffer
		r.batchBuffer = make(map[string]*TelemetrySnapshot)
		r.batchMu.Unlock()

		return r.flushBatch(ctx, batch)
	}

	r.batchMu.Unlock()
	return nil
}

// Load получает последний снимок телеметрии корабля.
func (r *RedisTelemetryRepo) Load(ctx context.Context, vesselID string) (*TelemetrySnapshot, bool, error) {
	if vesselID == "" {
		return nil, false, fmt.Errorf("недействительный vesselID: пустая строка")
	}

	// Сначала смотрим в батч-буфер: там может лежать более свежий снимок
	r.batchMu.Lock()
	if snap, ok := r.batchBuffer[vesselID]; ok {
		cp := *snap
		r.batchMu.Unlock()
		return &cp, true, nil
	}
	r.batchMu.Unlock()

	data, err := r.client.Get(ctx, r.keyPrefix+vesselID).Result()
	if err == redis.Nil {
		return nil, false, nil // Снимок не найден
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap TelemetrySnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, true, nil
}

// History возвращает снимки корабля за интервал [since, until].
func (r *RedisTelemetryRepo) History(ctx context.Context, vesselID string, since, until time.Time) ([]*TelemetrySnapshot, error) {
	if vesselID == "" {
		return nil, fmt.Errorf("недействительный vesselID: пустая строка")
	}

	entries, err := r.client.LRange(ctx, r.historyKey(vesselID), 0, r.historyDepth-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	// Список хранится новыми вперёд (LPUSH), разворачиваем в хронологию
	var out []*TelemetrySnapshot
	for i := len(entries) - 1; i >= 0; i-- {
		var snap TelemetrySnapshot
		if err := json.Unmarshal([]byte(entries[i]), &snap); err != nil {
			logging.Warn("⚠️ Failed to unmarshal history entry for %s: %v", vesselID, err)
			continue
		}
		if snap.Timestamp.Before(since) || snap.Timestamp.After(until) {
			continue
		}
		out = append(out, &snap)
	}

	return out, nil
}

// Delete удаляет телеметрию корабля.
func (r *RedisTelemetryRepo) Delete(ctx context.Context, vesselID string) error {
	if vesselID == "" {
		return fmt.Errorf("недействительный vesselID: пустая строка")
	}

	// Удаляем из батч-буфера если есть
	r.batchMu.Lock()
	delete(r.batchBuffer, vesselID)
	r.batchMu.Unlock()

	if err := r.client.Del(ctx, r.keyPrefix+vesselID, r.historyKey(vesselID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}

// BatchSave сохраняет снимки нескольких кораблей одним пайплайном.
func (r *RedisTelemetryRepo) BatchSave(ctx context.Context, snaps []*TelemetrySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch := make(map[string]*TelemetrySnapshot, len(snaps))
	for _, snap := range snaps {
		if err := validateSnapshot(snap); err != nil {
			return fmt.Errorf("недействительный снимок в batch: %w", err)
		}
		cp := *snap
		batch[snap.VesselID] = &cp
	}

	return r.flushBatch(ctx, batch)
}

// ActiveVesselCount возвращает количество кораблей с живой телеметрией.
func (r *RedisTelemetryRepo) ActiveVesselCount(ctx context.Context) (int64, error) {
	var count int64
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()

	for iter.Next(ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count vessels: %w", err)
	}

	return count, nil
}

// Close закрывает соединение с Redis.
func (r *RedisTelemetryRepo) Close() error {
	// Останавливаем батч-флашер
	close(r.shutdown)
	r.wg.Wait()
	r.batchTicker.Stop()

	// Сбрасываем оставшиеся данные
	r.batchMu.Lock()
	if len(r.batchBuffer) > 0 {
		if err := r.flushBatch(context.Background(), r.batchBuffer); err != nil {
			logging.Error("❌ Failed to flush final batch: %v", err)
		}
	}
	r.batchMu.Unlock()

	return r.client.Close()
}

// Внутренние методы

func (r *RedisTelemetryRepo) historyKey(vesselID string) string {
	return r.keyPrefix + vesselID + ":hist"
}

// batchFlusher периодически сбрасывает батч-буфер
func (r *RedisTelemetryRepo) batchFlusher() {
	defer r.wg.Done()

	for {
		select {
		case <-r.shutdown:
			return
		case <-r.batchTicker.C:
			r.batchMu.Lock()
			if len(r.batchBuffer) > 0 {
				batch := r.batchBuffer
				r.batchBuffer = make(map[string]*TelemetrySnapshot)
				r.batchMu.Unlock()

				if err := r.flushBatch(context.Background(), batch); err != nil {
					logging.Error("❌ Failed to flush batch: %v", err)
				}
			} else {
				r.batchMu.Unlock()
			}
		}
	}
}

// flushBatch записывает батч снимков в Redis одним пайплайном
func (r *RedisTelemetryRepo) flushBatch(ctx context.Context, batch map[string]*TelemetrySnapshot) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()

	for vesselID, snap := range batch {
		data, err := json.Marshal(snap)
		if err != nil {
			logging.Warn("⚠️ Failed to marshal snapshot for %s: %v", vesselID, err)
			continue
		}

		pipe.Set(ctx, r.keyPrefix+vesselID, data, r.ttl)

		histKey := r.historyKey(vesselID)
		pipe.LPush(ctx, histKey, data)
		pipe.LTrim(ctx, histKey, 0, r.historyDepth-1)
		pipe.Expire(ctx, histKey, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}
