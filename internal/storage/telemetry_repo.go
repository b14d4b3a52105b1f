package storage

import (
	"context"
	"time"

	"github.com/annel0/flight-telemetry/internal/vec"
)

// TelemetrySnapshot представляет один кадр телеметрии корабля.
// Хранится в репозитории как "последнее известное состояние" плюс
// ограниченная история для запросов за прошедший период.
type TelemetrySnapshot struct {
	VesselID  string    `json:"vessel_id"`
	Position  vec.Vec3  `json:"position"`
	Velocity  vec.Vec3  `json:"velocity"`
	Prograde  vec.Vec3  `json:"prograde"`
	Speed     float64   `json:"speed"`
	Altitude  float64   `json:"altitude"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// TelemetryRepo определяет интерфейс для сохранения и загрузки телеметрии кораблей.
// Записи привязаны к VesselID (постоянный идентификатор корабля в симуляции).
// Это позволяет восстанавливать последнее состояние между перезапусками сервера.
type TelemetryRepo interface {
	// Save сохраняет снимок телеметрии корабля в хранилище.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   snap - снимок телеметрии (VesselID обязателен)
	// Возвращает:
	//   error - ошибка при сохранении
	Save(ctx context.Context, snap *TelemetrySnapshot) error

	// Load загружает последний снимок телеметрии корабля.
	// Параметры:
	//   ctx - контекст для отмены операции
	//   vesselID - уникальный идентификатор корабля
	// Возвращает:
	//   *TelemetrySnapshot - последний снимок
	//   bool - true если снимок найден, false если корабль ещё не писал телеметрию
	//   error - ошибка при загрузке
	Load(ctx context.Context, vesselID string) (*TelemetrySnapshot, bool, error)

	// History возвращает снимки корабля за интервал [since, until],
	// отсортированные по возрастанию времени. Пустой результат - не ошибка.
	History(ctx context.Context, vesselID string, since, until time.Time) ([]*TelemetrySnapshot, error)

	// Delete удаляет сохранённую телеметрию корабля (для тестов или сброса).
	Delete(ctx context.Context, vesselID string) error

	// BatchSave сохраняет снимки нескольких кораблей одновременно
	// (для периодического автосохранения всей симуляции).
	BatchSave(ctx context.Context, snaps []*TelemetrySnapshot) error

	// Close освобождает ресурсы хранилища.
	Close() error
}
