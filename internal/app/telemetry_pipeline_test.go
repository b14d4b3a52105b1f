package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/annel0/flight-telemetry/internal/recorder"
	"github.com/annel0/flight-telemetry/internal/sim"
	"github.com/annel0/flight-telemetry/internal/storage"
	"github.com/annel0/flight-telemetry/internal/vec"
)

func TestTelemetryPipelineDispatch(t *testing.T) {
	simulation := sim.NewSimulation(sim.Options{})
	vessel := sim.NewVessel("Pipeline Test",
		vec.Vec3{X: 700000.0},
		vec.Vec3{Y: 2200.0})
	if err := simulation.AddVessel(vessel); err != nil {
		t.Fatalf("Не удалось добавить судно: %v", err)
	}

	tmpDir, err := os.MkdirTemp("", "pipeline_test")
	if err != nil {
		t.Fatalf("Не удалось создать временную директорию: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	flightRecorder, err := recorder.NewFlightRecorder(tmpDir)
	if err != nil {
		t.Fatalf("Не удалось открыть регистратор: %v", err)
	}
	defer flightRecorder.Close()

	repo := storage.NewMemoryTelemetryRepo()
	defer repo.Close()

	pipeline, err := NewTelemetryPipeline(PipelineConfig{
		Simulation: simulation,
		Repo:       repo,
		Recorder:   flightRecorder,
		SampleHz:   50,
	})
	if err != nil {
		t.Fatalf("Не удалось создать конвейер: %v", err)
	}

	ctx := context.Background()
	if err := pipeline.Start(ctx); err != nil {
		t.Fatalf("Не удалось запустить конвейер: %v", err)
	}

	// Ждём несколько циклов снятия снимков
	deadline := time.Now().Add(3 * time.Second)
	for pipeline.Samples() < 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	pipeline.Stop()

	if pipeline.Samples() < 3 {
		t.Fatalf("Ожидалось минимум 3 снимка, получено %d", pipeline.Samples())
	}
	if pipeline.Failures() != 0 {
		t.Errorf("Неожиданные сбои конвейера: %d", pipeline.Failures())
	}

	// Репозиторий хранит последний снимок
	snap, found, err := repo.Load(ctx, vessel.ID)
	if err != nil {
		t.Fatalf("Ошибка чтения снимка: %v", err)
	}
	if !found {
		t.Fatal("Снимок судна не найден в репозитории")
	}
	if snap.VesselID != vessel.ID {
		t.Errorf("Неверный VesselID: %s", snap.VesselID)
	}
	if snap.Speed == 0 {
		t.Error("Скорость в снимке не должна быть нулевой")
	}

	// Регистратор записал кадры
	if count := flightRecorder.FrameCount(vessel.ID); count < 3 {
		t.Errorf("Ожидалось минимум 3 кадра в регистраторе, получено %d", count)
	}
}

func TestTelemetryPipelineDoubleStart(t *testing.T) {
	simulation := sim.NewSimulation(sim.Options{})

	pipeline, err := NewTelemetryPipeline(PipelineConfig{Simulation: simulation})
	if err != nil {
		t.Fatalf("Не удалось создать конвейер: %v", err)
	}

	ctx := context.Background()
	if err := pipeline.Start(ctx); err != nil {
		t.Fatalf("Первый запуск должен пройти: %v", err)
	}
	if err := pipeline.Start(ctx); err == nil {
		t.Error("Повторный запуск должен вернуть ошибку")
	}
	pipeline.Stop()
}

func TestTelemetryPipelineRequiresSimulation(t *testing.T) {
	if _, err := NewTelemetryPipeline(PipelineConfig{}); err == nil {
		t.Error("Конвейер без симуляции должен вернуть ошибку")
	}
}
