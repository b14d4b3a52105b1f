package network

import (
	"fmt"

	"github.com/annel0/flight-telemetry/internal/logging"
)

// DefaultChannelFactory создаёт каналы поддерживаемых типов
type DefaultChannelFactory struct {
	logger *logging.Logger
}

// NewChannelFactory создаёт фабрику каналов
func NewChannelFactory() *DefaultChannelFactory {
	return &DefaultChannelFactory{
		logger: logging.GetNetworkLogger(),
	}
}

// CreateChannel создаёт канал указанного в конфигурации типа
func (f *DefaultChannelFactory) CreateChannel(config *ChannelConfig) (NetChannel, error) {
	if config == nil {
		return nil, fmt.Errorf("channel config is nil")
	}

	switch config.Type {
	case ChannelTCP:
		return NewTCPChannel(config, f.logger), nil
	case ChannelKCP:
		return NewKCPChannel(config, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported channel type: %v", config.Type)
	}
}

// SupportedTypes возвращает список поддерживаемых типов каналов
func (f *DefaultChannelFactory) SupportedTypes() []ChannelType {
	return []ChannelType{ChannelTCP, ChannelKCP}
}
