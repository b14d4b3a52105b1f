package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса телеметрии.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sim      SimConfig      `yaml:"sim"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Redis    RedisConfig    `yaml:"redis"`
	MariaDB  MariaConfig    `yaml:"mariadb"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Recorder RecorderConfig `yaml:"recorder"`
}

// ServerConfig порты и адреса сервиса.
type ServerConfig struct {
	TCPPort     int `yaml:"tcp_port"`
	KCPPort     int `yaml:"kcp_port"`
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`

	// StreamRateHz частота рассылки телеметрии подписчикам
	StreamRateHz int `yaml:"stream_rate_hz"`

	// RequireAuth требует аутентификацию на сокет-протоколе
	RequireAuth bool `yaml:"require_auth"`
}

// SimConfig параметры симуляции полёта.
type SimConfig struct {
	TickRateHz int   `yaml:"tick_rate_hz"` // Частота тиков симуляции
	Seed       int64 `yaml:"seed"`         // Сид генератора атмосферных возмущений

	// Параметры центрального тела (по умолчанию Кербин-подобные)
	BodyGM     float64 `yaml:"body_gm"`     // Гравитационный параметр, м^3/с^2
	BodyRadius float64 `yaml:"body_radius"` // Радиус тела, м
	AtmoHeight float64 `yaml:"atmo_height"` // Высота атмосферы, м
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MariaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RecorderConfig struct {
	DataDir       string `yaml:"data_dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// GetTCPPort возвращает TCP порт с поддержкой fallback значений
func (s *ServerConfig) GetTCPPort() int {
	return getPortWithEnvFallback(s.TCPPort, "TELEMETRY_TCP_PORT", 50000)
}

// GetKCPPort возвращает KCP порт с поддержкой fallback значений
func (s *ServerConfig) GetKCPPort() int {
	return getPortWithEnvFallback(s.KCPPort, "TELEMETRY_KCP_PORT", 50001)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "TELEMETRY_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "TELEMETRY_METRICS_PORT", 2112)
}

// GetStreamRateHz возвращает частоту стриминга (по умолчанию 10 Гц)
func (s *ServerConfig) GetStreamRateHz() int {
	if s.StreamRateHz > 0 {
		return s.StreamRateHz
	}
	return 10
}

// GetTickRateHz возвращает частоту тиков симуляции (по умолчанию 60 Гц)
func (s *SimConfig) GetTickRateHz() int {
	if s.TickRateHz > 0 {
		return s.TickRateHz
	}
	return 60
}

// GetBodyGM возвращает гравитационный параметр центрального тела
func (s *SimConfig) GetBodyGM() float64 {
	if s.BodyGM > 0 {
		return s.BodyGM
	}
	return 3.5316e12 // Кербин
}

// GetBodyRadius возвращает радиус центрального тела
func (s *SimConfig) GetBodyRadius() float64 {
	if s.BodyRadius > 0 {
		return s.BodyRadius
	}
	return 600000.0
}

// GetAtmoHeight возвращает высоту атмосферы
func (s *SimConfig) GetAtmoHeight() float64 {
	if s.AtmoHeight > 0 {
		return s.AtmoHeight
	}
	return 70000.0
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV TELEMETRY_CONFIG или возвращает nil, nil.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TELEMETRY_CONFIG")
		if path == "" {
			return nil, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
