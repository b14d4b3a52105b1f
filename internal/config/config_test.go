package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAML(t *testing.T) {
	raw := `
server:
  tcp_port: 51000
  stream_rate_hz: 25
  require_auth: true
sim:
  tick_rate_hz: 120
`
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("Ошибка записи конфигурации: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Ошибка чтения конфигурации: %v", err)
	}

	if got := cfg.Server.GetTCPPort(); got != 51000 {
		t.Errorf("TCP-порт: ожидалось 51000, получено %d", got)
	}
	if got := cfg.Server.GetStreamRateHz(); got != 25 {
		t.Errorf("Частота стрима: ожидалось 25, получено %d", got)
	}
	if !cfg.Server.RequireAuth {
		t.Error("require_auth должен быть включён")
	}
	if got := cfg.Sim.GetTickRateHz(); got != 120 {
		t.Errorf("Частота тиков: ожидалось 120, получено %d", got)
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config

	if got := cfg.Server.GetTCPPort(); got != 50000 {
		t.Errorf("TCP-порт по умолчанию: ожидалось 50000, получено %d", got)
	}
	if got := cfg.Server.GetMetricsPort(); got != 2112 {
		t.Errorf("Порт метрик по умолчанию: ожидалось 2112, получено %d", got)
	}
	if cfg.Server.RequireAuth {
		t.Error("Аутентификация по умолчанию выключена")
	}
	if got := cfg.Server.GetStreamRateHz(); got != 10 {
		t.Errorf("Частота стрима по умолчанию: ожидалось 10, получено %d", got)
	}
}
