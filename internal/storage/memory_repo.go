package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultHistoryLimit ограничивает глубину истории на корабль в памяти.
const DefaultHistoryLimit = 4096

// MemoryTelemetryRepo реализует TelemetryRepo в памяти.
// Используется как fallback, когда MariaDB/Redis недоступны,
// или для CI/локальной разработки без внешних сервисов.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryTelemetryRepo struct {
	mu           sync.RWMutex
	latest       map[string]*TelemetrySnapshot
	history      map[string][]*TelemetrySnapshot // кольцевой буфер на корабль
	historyLimit int
}

// NewMemoryTelemetryRepo создает новый репозиторий телеметрии в памяти.
func NewMemoryTelemetryRepo() *MemoryTelemetryRepo {
	return &MemoryTelemetryRepo{
		latest:       make(map[string]*TelemetrySnapshot),
		history:      make(map[string][]*TelemetrySnapshot),
		historyLimit: DefaultHistoryLimit,
	}
}

func validateSnapshot(snap *TelemetrySnapshot) error {
	if snap == nil {
		return fmt.Errorf("снимок телеметрии равен nil")
	}
	if snap.VesselID == "" {
		return fmt.Errorf("недействительный vesselID: пустая строка")
	}
	if !snap.Position.IsFinite() || !snap.Velocity.IsFinite() {
		return fmt.Errorf("недействительный снимок для %s: не-конечные координаты", snap.VesselID)
	}
	return nil
}

// Save сохраняет снимок телеметрии в памяти.
func (r *MemoryTelemetryRepo) Save(ctx context.Context, snap *TelemetrySnapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	// Проверяем контекст на отмену
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.saveLocked(snap)
	return nil
}

// saveLocked выполняет запись под уже захваченным мьютексом.
func (r *MemoryTelemetryRepo) saveLocked(snap *TelemetrySnapshot) {
	cp := *snap
	r.latest[snap.VesselID] = &cp

	ring := append(r.history[snap.VesselID], &cp)
	if len(ring) > r.historyLimit {
		ring = ring[len(ring)-r.historyLimit:]
	}
	r.history[snap.VesselID] = ring
}

// Load загружает последний снимок телеметрии из памяти.
func (r *MemoryTelemetryRepo) Load(ctx context.Context, vesselID string) (*TelemetrySnapshot, bool, error) {
	if vesselID == "" {
		return nil, false, fmt.Errorf("недействительный vesselID: пустая строка")
	}

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.latest[vesselID]
	if !ok {
		return nil, false, nil
	}

	cp := *snap
	return &cp, true, nil
}

// History возвращает снимки корабля за интервал [since, until].
func (r *MemoryTelemetryRepo) History(ctx context.Context, vesselID string, since, until time.Time) ([]*TelemetrySnapshot, error) {
	if vesselID == "" {
		return nil, fmt.Errorf("недействительный vesselID: пустая строка")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*TelemetrySnapshot
	for _, snap := range r.history[vesselID] {
		if snap.Timestamp.Before(since) || snap.Timestamp.After(until) {
			continue
		}
		cp := *snap
		out = append(out, &cp)
	}
	return out, nil
}

// Delete удаляет телеметрию корабля из памяти.
func (r *MemoryTelemetryRepo) Delete(ctx context.Context, vesselID string) error {
	if vesselID == "" {
		return fmt.Errorf("недействительный vesselID: пустая строка")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.latest[vesselID]; !ok {
		return fmt.Errorf("телеметрия для корабля %s не найдена", vesselID)
	}

	delete(r.latest, vesselID)
	delete(r.history, vesselID)
	return nil
}

// BatchSave сохраняет снимки нескольких кораблей одновременно.
func (r *MemoryTelemetryRepo) BatchSave(ctx context.Context, snaps []*TelemetrySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	for _, snap := range snaps {
		if err := validateSnapshot(snap); err != nil {
			return fmt.Errorf("недействительный снимок в batch: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, snap := range snaps {
		r.saveLocked(snap)
	}
	return nil
}

// Close освобождает хранилище (для памяти - no-op).
func (r *MemoryTelemetryRepo) Close() error {
	return nil
}

// Count возвращает количество кораблей с телеметрией (для тестов и отладки).
func (r *MemoryTelemetryRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.latest)
}

// Clear очищает все сохранённые снимки (для тестов).
func (r *MemoryTelemetryRepo) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = make(map[string]*TelemetrySnapshot)
	r.history = make(map[string][]*TelemetrySnapshot)
}
