package storage

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/annel0/flight-telemetry/internal/vec"
)

func testSnapshot(vesselID string, t time.Time) *TelemetrySnapshot {
	return &TelemetrySnapshot{
		VesselID:  vesselID,
		Position:  vec.Vec3{X: 670000, Y: 0, Z: 0},
		Velocity:  vec.Vec3{X: 0, Y: 2295.8, Z: 0},
		Prograde:  vec.Vec3{X: 0, Y: 1, Z: 0},
		Speed:     2295.8,
		Altitude:  70000,
		State:     "orbit",
		Timestamp: t,
	}
}

// TestMemoryTelemetryRepo тестирует in-memory репозиторий телеметрии
func TestMemoryTelemetryRepo(t *testing.T) {
	repo := NewMemoryTelemetryRepo()
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		expected := testSnapshot("kerbin-1", time.Now())

		// Сохраняем снимок
		if err := repo.Save(ctx, expected); err != nil {
			t.Fatalf("Ошибка сохранения снимка: %v", err)
		}

		// Загружаем снимок
		actual, found, err := repo.Load(ctx, "kerbin-1")
		if err != nil {
			t.Fatalf("Ошибка загрузки снимка: %v", err)
		}

		if !found {
			t.Fatal("Снимок не найден")
		}

		if actual.Position != expected.Position || actual.Velocity != expected.Velocity {
			t.Errorf("Неверный снимок: ожидался %+v, получен %+v", expected, actual)
		}
		if actual.State != expected.State {
			t.Errorf("Неверное состояние: ожидалось %s, получено %s", expected.State, actual.State)
		}
	})

	t.Run("Load Non-Existent Vessel", func(t *testing.T) {
		snap, found, err := repo.Load(ctx, "ghost-ship")
		if err != nil {
			t.Fatalf("Ошибка при загрузке несуществующего корабля: %v", err)
		}

		if found {
			t.Error("Снимок найден для несуществующего корабля")
		}

		if snap != nil {
			t.Errorf("Ожидался nil, получен: %+v", snap)
		}
	})

	t.Run("Update Snapshot", func(t *testing.T) {
		first := testSnapshot("kerbin-2", time.Now())
		second := testSnapshot("kerbin-2", time.Now().Add(time.Second))
		second.Altitude = 71000
		second.State = "reentry"

		if err := repo.Save(ctx, first); err != nil {
			t.Fatalf("Ошибка сохранения первого снимка: %v", err)
		}
		if err := repo.Save(ctx, second); err != nil {
			t.Fatalf("Ошибка обновления снимка: %v", err)
		}

		actual, found, err := repo.Load(ctx, "kerbin-2")
		if err != nil {
			t.Fatalf("Ошибка загрузки обновлённого снимка: %v", err)
		}

		if !found {
			t.Fatal("Обновлённый снимок не найден")
		}

		if actual.Altitude != second.Altitude || actual.State != second.State {
			t.Errorf("Снимок не обновлён: ожидался %+v, получен %+v", second, actual)
		}
	})

	t.Run("History Window", func(t *testing.T) {
		base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 10; i++ {
			snap := testSnapshot("kerbin-3", base.Add(time.Duration(i)*time.Second))
			if err := repo.Save(ctx, snap); err != nil {
				t.Fatalf("Ошибка сохранения снимка %d: %v", i, err)
			}
		}

		// Запрашиваем окно, покрывающее снимки 3..6
		got, err := repo.History(ctx, "kerbin-3", base.Add(3*time.Second), base.Add(6*time.Second))
		if err != nil {
			t.Fatalf("Ошибка запроса истории: %v", err)
		}

		if len(got) != 4 {
			t.Fatalf("Ожидалось 4 снимка в окне, получено: %d", len(got))
		}

		// Проверяем хронологический порядок
		for i := 1; i < len(got); i++ {
			if got[i].Timestamp.Before(got[i-1].Timestamp) {
				t.Errorf("История не отсортирована по времени: %v после %v",
					got[i].Timestamp, got[i-1].Timestamp)
			}
		}
	})

	t.Run("Delete Snapshot", func(t *testing.T) {
		snap := testSnapshot("kerbin-4", time.Now())

		if err := repo.Save(ctx, snap); err != nil {
			t.Fatalf("Ошибка сохранения снимка: %v", err)
		}

		if err := repo.Delete(ctx, "kerbin-4"); err != nil {
			t.Fatalf("Ошибка удаления снимка: %v", err)
		}

		_, found, err := repo.Load(ctx, "kerbin-4")
		if err != nil {
			t.Fatalf("Ошибка загрузки после удаления: %v", err)
		}

		if found {
			t.Error("Снимок найден после удаления")
		}

		// История тоже должна быть удалена
		hist, err := repo.History(ctx, "kerbin-4", time.Time{}, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Ошибка запроса истории после удаления: %v", err)
		}
		if len(hist) != 0 {
			t.Errorf("История не удалена: %d снимков", len(hist))
		}
	})

	t.Run("BatchSave", func(t *testing.T) {
		now := time.Now()
		snaps := []*TelemetrySnapshot{
			testSnapshot("batch-1", now),
			testSnapshot("batch-2", now),
			testSnapshot("batch-3", now),
		}

		if err := repo.BatchSave(ctx, snaps); err != nil {
			t.Fatalf("Ошибка пакетного сохранения: %v", err)
		}

		for _, expected := range snaps {
			actual, found, err := repo.Load(ctx, expected.VesselID)
			if err != nil {
				t.Fatalf("Ошибка загрузки снимка для корабля %s: %v", expected.VesselID, err)
			}

			if !found {
				t.Errorf("Снимок не найден для корабля %s", expected.VesselID)
				continue
			}

			if actual.Position != expected.Position {
				t.Errorf("Неверный снимок для корабля %s: ожидался %+v, получен %+v",
					expected.VesselID, expected, actual)
			}
		}
	})

	t.Run("Validation", func(t *testing.T) {
		// Пустой vesselID
		bad := testSnapshot("", time.Now())
		if err := repo.Save(ctx, bad); err == nil {
			t.Error("Ожидалась ошибка для пустого vesselID")
		}

		// nil снимок
		if err := repo.Save(ctx, nil); err == nil {
			t.Error("Ожидалась ошибка для nil снимка")
		}

		// Не-конечные координаты
		inf := testSnapshot("kerbin-5", time.Now())
		inf.Position.X = math.Inf(1)
		if err := repo.Save(ctx, inf); err == nil {
			t.Error("Ожидалась ошибка для не-конечных координат")
		}

		nan := testSnapshot("kerbin-5", time.Now())
		nan.Velocity.Y = math.NaN()
		if err := repo.Save(ctx, nan); err == nil {
			t.Error("Ожидалась ошибка для NaN в скорости")
		}
	})

	t.Run("Context Cancellation", func(t *testing.T) {
		// Создаём отменённый контекст
		canceledCtx, cancel := context.WithCancel(context.Background())
		cancel()

		snap := testSnapshot("kerbin-6", time.Now())

		// Операция должна вернуть ошибку отмены контекста
		if err := repo.Save(canceledCtx, snap); err != context.Canceled {
			t.Errorf("Ожидалась ошибка отмены контекста, получена: %v", err)
		}
	})
}

// TestMemoryTelemetryRepoHistoryLimit проверяет обрезку кольцевой истории
func TestMemoryTelemetryRepoHistoryLimit(t *testing.T) {
	repo := NewMemoryTelemetryRepo()
	repo.historyLimit = 8
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		snap := testSnapshot("ring-1", base.Add(time.Duration(i)*time.Second))
		if err := repo.Save(ctx, snap); err != nil {
			t.Fatalf("Ошибка сохранения снимка %d: %v", i, err)
		}
	}

	hist, err := repo.History(ctx, "ring-1", time.Time{}, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Ошибка запроса истории: %v", err)
	}

	if len(hist) != 8 {
		t.Fatalf("Ожидалось 8 снимков после обрезки, получено: %d", len(hist))
	}

	// Должны остаться самые свежие снимки (12..19)
	if !hist[0].Timestamp.Equal(base.Add(12 * time.Second)) {
		t.Errorf("Ожидался первый снимок с t=+12s, получен: %v", hist[0].Timestamp)
	}
}

// TestMemoryTelemetryRepoUtilityMethods тестирует вспомогательные методы
func TestMemoryTelemetryRepoUtilityMethods(t *testing.T) {
	repo := NewMemoryTelemetryRepo()
	ctx := context.Background()

	if repo.Count() != 0 {
		t.Errorf("Ожидалось 0 снимков, получено: %d", repo.Count())
	}

	now := time.Now()
	for i := 0; i < 3; i++ {
		snap := testSnapshot(fmt.Sprintf("util-%d", i), now)
		if err := repo.Save(ctx, snap); err != nil {
			t.Fatalf("Ошибка сохранения снимка: %v", err)
		}
	}

	if repo.Count() != 3 {
		t.Errorf("Ожидалось 3 снимка, получено: %d", repo.Count())
	}

	repo.Clear()
	if repo.Count() != 0 {
		t.Errorf("После Clear ожидалось 0 снимков, получено: %d", repo.Count())
	}
}

// TestTelemetryRepoConcurrentAccess тестирует concurrent доступ к репозиторию
func TestTelemetryRepoConcurrentAccess(t *testing.T) {
	repo := NewMemoryTelemetryRepo()
	ctx := context.Background()

	const numGoroutines = 10
	const numOperations = 100

	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(goroutineID int) {
			defer func() { done <- true }()

			for j := 0; j < numOperations; j++ {
				vesselID := fmt.Sprintf("vessel-%d-%d", goroutineID, j)
				snap := testSnapshot(vesselID, time.Now())
				snap.Altitude = float64(goroutineID*1000 + j)

				if err := repo.Save(ctx, snap); err != nil {
					t.Errorf("Ошибка сохранения в горутине %d: %v", goroutineID, err)
					return
				}

				loaded, found, err := repo.Load(ctx, vesselID)
				if err != nil {
					t.Errorf("Ошибка загрузки в горутине %d: %v", goroutineID, err)
					return
				}

				if !found {
					t.Errorf("Снимок не найден в горутине %d для корабля %s",
						goroutineID, vesselID)
					return
				}

				if loaded.Altitude != snap.Altitude {
					t.Errorf("Неверный снимок в горутине %d: ожидался %+v, получен %+v",
						goroutineID, snap, loaded)
					return
				}
			}
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Тест превысил таймаут")
		}
	}

	expectedCount := numGoroutines * numOperations
	if repo.Count() != expectedCount {
		t.Errorf("Ожидалось %d снимков после concurrent теста, получено: %d",
			expectedCount, repo.Count())
	}
}
