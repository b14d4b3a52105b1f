// Package network предоставляет унифицированный интерфейс для сетевых каналов
// и сервер протокола телеметрии.
package network

import (
	"context"
	"time"

	"github.com/annel0/flight-telemetry/internal/protocol"
)

// ChannelType определяет тип канала связи
type ChannelType int

const (
	ChannelTCP ChannelType = iota
	ChannelKCP
)

// String возвращает имя типа канала
func (t ChannelType) String() string {
	switch t {
	case ChannelTCP:
		return "tcp"
	case ChannelKCP:
		return "kcp"
	default:
		return "unknown"
	}
}

// ConnectionStats содержит статистику соединения
type ConnectionStats struct {
	RTT             time.Duration // Round-trip time
	PacketsSent     uint64        // Отправлено пакетов
	PacketsReceived uint64        // Получено пакетов
	BytesSent       uint64        // Отправлено байт
	BytesReceived   uint64        // Получено байт
	LastActivity    time.Time     // Последняя активность
	Connected       bool          // Статус соединения
	RemoteAddr      string        // Адрес удалённого узла
}

// SendOptions настройки отправки сообщения
type SendOptions struct {
	Flags    protocol.NetFlags // Флаги надёжности
	Compress bool              // Сжимать нагрузку при превышении порога
	Timeout  time.Duration     // Таймаут отправки
}

// NetChannel представляет унифицированный интерфейс для сетевого канала
type NetChannel interface {
	// Основные операции
	Send(ctx context.Context, msg *protocol.Message, opts *SendOptions) error
	Receive(ctx context.Context) (*protocol.Message, error)
	Close() error

	// Управление соединением
	Connect(ctx context.Context, addr string) error
	IsConnected() bool
	RemoteAddr() string

	// Статистика и мониторинг
	Stats() ConnectionStats
	RTT() time.Duration

	// Настройки канала
	SetTimeout(timeout time.Duration) error
	SetKeepAlive(interval time.Duration) error

	// События
	OnDisconnect(handler func(error))
}

// ChannelConfig содержит конфигурацию канала
type ChannelConfig struct {
	Type       ChannelType
	BufferSize int
	Timeout    time.Duration
	KeepAlive  time.Duration
	Compress   bool
}

// DefaultChannelConfig возвращает конфигурацию канала по умолчанию
func DefaultChannelConfig(channelType ChannelType) *ChannelConfig {
	return &ChannelConfig{
		Type:       channelType,
		BufferSize: 256,
		Timeout:    30 * time.Second,
		KeepAlive:  10 * time.Second,
		Compress:   true,
	}
}

// ChannelFactory создаёт каналы разных типов
type ChannelFactory interface {
	CreateChannel(config *ChannelConfig) (NetChannel, error)
	SupportedTypes() []ChannelType
}
