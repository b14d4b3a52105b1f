package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerMetrics снимает показатели процесса сервера телеметрии
// для эндпоинтов /stats и /server.
type ServerMetrics struct {
	startTime time.Time
	proc      *process.Process
}

// ProcessSnapshot агрегированное состояние процесса на момент опроса
type ProcessSnapshot struct {
	Uptime     string  `json:"uptime"`
	AllocMB    float64 `json:"alloc_mb"`
	SysMB      float64 `json:"sys_mb"`
	HeapMB     float64 `json:"heap_mb"`
	GCCycles   uint32  `json:"gc_cycles"`
	Goroutines int     `json:"goroutines"`
	ProcCPU    float64 `json:"proc_cpu_percent"`
	SystemCPU  float64 `json:"system_cpu_percent"`
}

// NewServerMetrics привязывает сборщик к текущему процессу.
func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{startTime: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = p
	}
	return sm
}

// Snapshot собирает все показатели одним вызовом.
// Ошибки отдельных датчиков не фатальны: поле остаётся нулевым.
func (sm *ServerMetrics) Snapshot() ProcessSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snap := ProcessSnapshot{
		Uptime:     sm.GetUptime(),
		AllocMB:    toMB(m.Alloc),
		SysMB:      toMB(m.Sys),
		HeapMB:     toMB(m.HeapAlloc),
		GCCycles:   m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
	snap.ProcCPU, _ = sm.GetCPUUsage()
	snap.SystemCPU, _ = sm.GetSystemCPUUsage()
	return snap
}

// GetUptime возвращает время работы сервера в человекочитаемом виде
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.startTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	}
	return fmt.Sprintf("%dс", seconds)
}

// GetCPUUsage возвращает загрузку CPU процессом в процентах.
// Если метрика процесса недоступна, отдаёт системную.
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	if sm.proc != nil {
		if pct, err := sm.proc.CPUPercent(); err == nil {
			return pct, nil
		}
	}

	pcts, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(pcts) == 0 {
		return 0, err
	}
	return pcts[0], nil
}

// GetSystemCPUUsage возвращает общую загрузку CPU системы
func (sm *ServerMetrics) GetSystemCPUUsage() (float64, error) {
	pcts, err := cpu.Percent(time.Second, false)
	if err != nil || len(pcts) == 0 {
		return 0, err
	}
	return pcts[0], nil
}

func toMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
