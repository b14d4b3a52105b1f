package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestProcessSnapshot(t *testing.T) {
	sm := NewServerMetrics()
	snap := sm.Snapshot()

	if snap.Goroutines <= 0 {
		t.Errorf("Число горутин должно быть положительным, получено %d", snap.Goroutines)
	}
	if snap.AllocMB <= 0 {
		t.Errorf("Выделенная память должна быть положительной, получено %f", snap.AllocMB)
	}
	if snap.Uptime == "" {
		t.Error("Uptime не должен быть пустым")
	}

	// Снимок уходит в JSON-ответы /stats и /server
	if _, err := json.Marshal(snap); err != nil {
		t.Fatalf("Снимок процесса не кодируется в JSON: %v", err)
	}
}

func TestGetUptimeFormat(t *testing.T) {
	sm := NewServerMetrics()

	uptime := sm.GetUptime()
	if !strings.HasSuffix(uptime, "с") {
		t.Errorf("Свежий аптайм должен измеряться секундами, получено %q", uptime)
	}
}
