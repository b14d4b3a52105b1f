package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/flight-telemetry/internal/cache"
	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/protocol"
	"github.com/annel0/flight-telemetry/internal/recorder"
	"github.com/annel0/flight-telemetry/internal/sim"
	"github.com/annel0/flight-telemetry/internal/storage"
)

// TelemetryPipeline периодически снимает телеметрию со всех судов симуляции
// и раскладывает её по потребителям: репозиторий (последний снимок + история),
// бортовой регистратор (покадровая запись) и кеш снимков.
// Репозиторий, регистратор и кеш опциональны — nil-потребитель пропускается.
type TelemetryPipeline struct {
	simulation *sim.Simulation
	repo       storage.TelemetryRepo
	recorder   *recorder.FlightRecorder
	flights    cache.FlightCache
	sampleHz   int
	logger     *logging.Logger

	mutex   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	samples  atomic.Uint64
	failures atomic.Uint64
}

// PipelineConfig параметры конвейера телеметрии
type PipelineConfig struct {
	Simulation *sim.Simulation
	Repo       storage.TelemetryRepo
	Recorder   *recorder.FlightRecorder
	Flights    cache.FlightCache
	SampleHz   int // Частота снятия снимков (по умолчанию 1 Гц)
}

// NewTelemetryPipeline создает конвейер телеметрии
func NewTelemetryPipeline(cfg PipelineConfig) (*TelemetryPipeline, error) {
	if cfg.Simulation == nil {
		return nil, fmt.Errorf("симуляция не задана")
	}

	sampleHz := cfg.SampleHz
	if sampleHz <= 0 {
		sampleHz = 1
	}

	return &TelemetryPipeline{
		simulation: cfg.Simulation,
		repo:       cfg.Repo,
		recorder:   cfg.Recorder,
		flights:    cfg.Flights,
		sampleHz:   sampleHz,
		logger:     logging.GetSimLogger(),
	}, nil
}

// Start запускает цикл снятия снимков
func (tp *TelemetryPipeline) Start(ctx context.Context) error {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()

	if tp.running {
		return fmt.Errorf("конвейер уже запущен")
	}

	ctx, tp.cancel = context.WithCancel(ctx)
	tp.running = true

	tp.wg.Add(1)
	go tp.sampleLoop(ctx)

	tp.logger.Info("Telemetry pipeline started: sample_rate=%dHz", tp.sampleHz)
	return nil
}

// Stop останавливает цикл и дожидается завершения
func (tp *TelemetryPipeline) Stop() {
	tp.mutex.Lock()
	if !tp.running {
		tp.mutex.Unlock()
		return
	}
	tp.running = false
	cancel := tp.cancel
	tp.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	tp.wg.Wait()
	tp.logger.Info("Telemetry pipeline stopped: samples=%d failures=%d",
		tp.samples.Load(), tp.failures.Load())
}

// sampleLoop снимает телеметрию с заданной частотой
func (tp *TelemetryPipeline) sampleLoop(ctx context.Context) {
	defer tp.wg.Done()

	interval := time.Duration(float64(time.Second) / float64(tp.sampleHz))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tp.sampleAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sampleAll снимает и раскладывает телеметрию всех судов
func (tp *TelemetryPipeline) sampleAll(ctx context.Context) {
	for _, info := range tp.simulation.VesselInfos() {
		data, err := tp.simulation.Flight(info.ID)
		if err != nil {
			continue
		}

		if err := tp.dispatch(ctx, &data); err != nil {
			tp.failures.Add(1)
			tp.logger.Warn("Pipeline dispatch failed for %s: %v", info.ID, err)
			continue
		}
		tp.samples.Add(1)
		logging.LogTelemetryUpdate(info.ID, data.Speed, data.Altitude)
	}
}

// dispatch передает один снимок всем подключенным потребителям
func (tp *TelemetryPipeline) dispatch(ctx context.Context, data *protocol.FlightData) error {
	var firstErr error

	if tp.recorder != nil {
		if err := tp.recorder.Record(data.VesselID, data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("recorder: %w", err)
		}
	}

	snap := snapshotFromFlight(data)

	if tp.repo != nil {
		if err := tp.repo.Save(ctx, snap); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("repo: %w", err)
		}
	}

	if tp.flights != nil {
		if err := tp.flights.Put(ctx, snap); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cache: %w", err)
		}
	}

	return firstErr
}

// Samples возвращает число успешно разложенных снимков
func (tp *TelemetryPipeline) Samples() uint64 {
	return tp.samples.Load()
}

// Failures возвращает число снимков, не доставленных хотя бы одному потребителю
func (tp *TelemetryPipeline) Failures() uint64 {
	return tp.failures.Load()
}

// snapshotFromFlight преобразует кадр телеметрии в снимок для хранения
func snapshotFromFlight(data *protocol.FlightData) *storage.TelemetrySnapshot {
	return &storage.TelemetrySnapshot{
		VesselID:  data.VesselID,
		Position:  data.Position,
		Velocity:  data.Velocity,
		Prograde:  data.Prograde,
		Speed:     data.Speed,
		Altitude:  data.Altitude,
		State:     data.State,
		Timestamp: time.Now().UTC(),
	}
}
