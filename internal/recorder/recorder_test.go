package recorder

import (
	"os"
	"testing"
	"time"

	"github.com/annel0/flight-telemetry/internal/protocol"
	"github.com/annel0/flight-telemetry/internal/vec"
)

func setupTestRecorder(t *testing.T) (*FlightRecorder, string) {
	// Создаем временную директорию для тестов
	tempDir, err := os.MkdirTemp("", "flight-recorder-test")
	if err != nil {
		t.Fatalf("Не удалось создать временную директорию: %v", err)
	}

	rec, err := NewFlightRecorder(tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Не удалось создать регистратор: %v", err)
	}

	return rec, tempDir
}

func cleanupTestRecorder(rec *FlightRecorder, tempDir string) {
	if rec != nil {
		rec.Close()
	}
	if tempDir != "" {
		os.RemoveAll(tempDir)
	}
}

func testFlightData(altitude float64) *protocol.FlightData {
	return &protocol.FlightData{
		Position: vec.Vec3{X: 600000 + altitude, Y: 0, Z: 0},
		Velocity: vec.Vec3{X: 0, Y: 2295.8, Z: 0},
		Prograde: vec.Vec3{X: 0, Y: 1, Z: 0},
		Speed:    2295.8,
		Altitude: altitude,
		State:    "orbit",
	}
}

func TestRecordAndReplay(t *testing.T) {
	rec, tempDir := setupTestRecorder(t)
	defer cleanupTestRecorder(rec, tempDir)

	before := time.Now().Add(-time.Second)

	// Записываем несколько кадров
	for i := 0; i < 5; i++ {
		if err := rec.Record("kerbin-1", testFlightData(float64(70000+i*100))); err != nil {
			t.Fatalf("Ошибка записи кадра %d: %v", i, err)
		}
	}

	if got := rec.FrameCount("kerbin-1"); got != 5 {
		t.Errorf("Неверное количество кадров: %d, ожидалось 5", got)
	}

	// Воспроизводим весь интервал
	frames, err := rec.Replay("kerbin-1", before, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Ошибка воспроизведения: %v", err)
	}

	if len(frames) != 5 {
		t.Fatalf("Неверное количество кадров при воспроизведении: %d, ожидалось 5", len(frames))
	}

	// Кадры должны идти в порядке записи
	for i, frame := range frames {
		if frame.Seq != uint64(i) {
			t.Errorf("Неверный номер кадра: %d, ожидался %d", frame.Seq, i)
		}
		wantAlt := float64(70000 + i*100)
		if frame.Data.Altitude != wantAlt {
			t.Errorf("Неверная высота в кадре %d: %f, ожидалась %f", i, frame.Data.Altitude, wantAlt)
		}
	}
}

func TestReplayEmptyWindow(t *testing.T) {
	rec, tempDir := setupTestRecorder(t)
	defer cleanupTestRecorder(rec, tempDir)

	if err := rec.Record("kerbin-1", testFlightData(70000)); err != nil {
		t.Fatalf("Ошибка записи кадра: %v", err)
	}

	// Окно в прошлом - кадры не попадают
	past := time.Now().Add(-time.Hour)
	frames, err := rec.Replay("kerbin-1", past, past.Add(time.Minute))
	if err != nil {
		t.Fatalf("Ошибка воспроизведения: %v", err)
	}

	if len(frames) != 0 {
		t.Errorf("Ожидалось 0 кадров, получено: %d", len(frames))
	}
}

func TestReplayUnknownVessel(t *testing.T) {
	rec, tempDir := setupTestRecorder(t)
	defer cleanupTestRecorder(rec, tempDir)

	frames, err := rec.Replay("ghost-ship", time.Time{}, time.Now())
	if err != nil {
		t.Fatalf("Ошибка воспроизведения для неизвестного корабля: %v", err)
	}

	if len(frames) != 0 {
		t.Errorf("Ожидалось 0 кадров, получено: %d", len(frames))
	}
}

func TestSequenceRestoreAfterReopen(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "flight-recorder-test")
	if err != nil {
		t.Fatalf("Не удалось создать временную директорию: %v", err)
	}
	defer os.RemoveAll(tempDir)

	rec, err := NewFlightRecorder(tempDir)
	if err != nil {
		t.Fatalf("Не удалось создать регистратор: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := rec.Record("kerbin-1", testFlightData(70000)); err != nil {
			t.Fatalf("Ошибка записи кадра: %v", err)
		}
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Ошибка закрытия регистратора: %v", err)
	}

	// Переоткрываем и проверяем, что нумерация продолжается
	rec, err = NewFlightRecorder(tempDir)
	if err != nil {
		t.Fatalf("Не удалось переоткрыть регистратор: %v", err)
	}
	defer rec.Close()

	if got := rec.FrameCount("kerbin-1"); got != 3 {
		t.Errorf("Счётчик кадров не восстановлен: %d, ожидалось 3", got)
	}

	if err := rec.Record("kerbin-1", testFlightData(70000)); err != nil {
		t.Fatalf("Ошибка записи после переоткрытия: %v", err)
	}

	frames, err := rec.Replay("kerbin-1", time.Time{}, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Ошибка воспроизведения: %v", err)
	}

	if len(frames) != 4 {
		t.Fatalf("Неверное количество кадров: %d, ожидалось 4", len(frames))
	}

	if frames[3].Seq != 3 {
		t.Errorf("Неверный номер нового кадра: %d, ожидался 3", frames[3].Seq)
	}
}

func TestPurge(t *testing.T) {
	rec, tempDir := setupTestRecorder(t)
	defer cleanupTestRecorder(rec, tempDir)

	for i := 0; i < 3; i++ {
		if err := rec.Record("kerbin-1", testFlightData(70000)); err != nil {
			t.Fatalf("Ошибка записи кадра: %v", err)
		}
	}
	if err := rec.Record("kerbin-2", testFlightData(70000)); err != nil {
		t.Fatalf("Ошибка записи кадра: %v", err)
	}

	if err := rec.Purge("kerbin-1"); err != nil {
		t.Fatalf("Ошибка очистки: %v", err)
	}

	frames, err := rec.Replay("kerbin-1", time.Time{}, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Ошибка воспроизведения после очистки: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("Кадры найдены после очистки: %d", len(frames))
	}

	// Второй корабль не затронут
	frames, err = rec.Replay("kerbin-2", time.Time{}, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Ошибка воспроизведения: %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("Ожидался 1 кадр для kerbin-2, получено: %d", len(frames))
	}
}
