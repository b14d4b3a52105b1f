package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// MessageSerializer предоставляет функции для сериализации и десериализации сообщений.
// Полезная нагрузка кодируется в JSON и оборачивается в protobuf StringValue,
// чтобы кадр оставался расширяемым без перегенерации схемы.
type MessageSerializer struct{}

// NewMessageSerializer создает новый сериализатор сообщений
func NewMessageSerializer() *MessageSerializer {
	return &MessageSerializer{}
}

// MarshalPayload сериализует структуру данных в бинарный формат
func (ms *MessageSerializer) MarshalPayload(data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации в JSON: %w", err)
	}

	return proto.Marshal(wrapperspb.String(string(jsonData)))
}

// UnmarshalPayload десериализует бинарные данные в указанную структуру
func (ms *MessageSerializer) UnmarshalPayload(data []byte, result interface{}) error {
	var wrapper wrapperspb.StringValue
	if err := proto.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("ошибка десериализации обёртки: %w", err)
	}

	if err := json.Unmarshal([]byte(wrapper.Value), result); err != nil {
		return fmt.Errorf("ошибка десериализации из JSON: %w", err)
	}

	return nil
}

// BuildMessage сериализует нагрузку и заворачивает её в Message
func (ms *MessageSerializer) BuildMessage(msgType MsgType, payload interface{}) (*Message, error) {
	data, err := ms.MarshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации полезной нагрузки %s: %w", msgType, err)
	}
	return NewMessage(msgType, data), nil
}

// Размеры полей заголовка кадра
const (
	headerSize     = 2 + 1 + 1 + 4 + 8 // type + flags + compression + sequence + timestamp
	MaxMessageSize = 1 << 20           // 1MB максимум на кадр
)

// EncodeFrame кодирует Message в бинарный кадр (без length-префикса,
// его добавляет транспортный канал).
func EncodeFrame(msg *Message) []byte {
	buf := make([]byte, headerSize+len(msg.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(msg.Type))
	buf[2] = byte(msg.Flags)
	buf[3] = byte(msg.Compression)
	binary.BigEndian.PutUint32(buf[4:8], msg.Sequence)
	binary.BigEndian.PutUint64(buf[8:16], uint64(msg.Timestamp))
	copy(buf[headerSize:], msg.Payload)
	return buf
}

// DecodeFrame разбирает бинарный кадр в Message
func DecodeFrame(data []byte) (*Message, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("кадр слишком короткий: %d байт", len(data))
	}

	msg := &Message{
		Type:        MsgType(binary.BigEndian.Uint16(data[0:2])),
		Flags:       NetFlags(data[2]),
		Compression: CompressionType(data[3]),
		Sequence:    binary.BigEndian.Uint32(data[4:8]),
		Timestamp:   int64(binary.BigEndian.Uint64(data[8:16])),
	}

	if len(data) > headerSize {
		msg.Payload = make([]byte, len(data)-headerSize)
		copy(msg.Payload, data[headerSize:])
	}

	return msg, nil
}

// Вспомогательные функции для работы с бинарными данными

// WriteUint32 записывает uint32 в big-endian формате
func WriteUint32(val uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, val)
	return b
}

// WriteUint64 записывает uint64 в big-endian формате
func WriteUint64(val uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, val)
	return b
}

// ReadUint32 читает uint32 из big-endian формата
func ReadUint32(data []byte) uint32 {
	return binary.BigEndian.Uint32(data)
}

// ReadUint64 читает uint64 из big-endian формата
func ReadUint64(data []byte) uint64 {
	return binary.BigEndian.Uint64(data)
}
