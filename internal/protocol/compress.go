package protocol

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Общие zstd кодеры: потокобезопасны при использовании EncodeAll/DecodeAll.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func initZstd() {
	zstdOnce.Do(func() {
		zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		zstdDecoder, _ = zstd.NewReader(nil)
	})
}

// CompressThreshold минимальный размер нагрузки для сжатия.
// Короткие кадры сжимать невыгодно.
const CompressThreshold = 512

// MaybeCompress сжимает нагрузку сообщения если она превышает порог.
// Выставляет поле Compression у сообщения.
func MaybeCompress(msg *Message) {
	if msg.Compression != CompressionNone || len(msg.Payload) < CompressThreshold {
		return
	}

	initZstd()
	if zstdEncoder == nil {
		return
	}

	compressed := zstdEncoder.EncodeAll(msg.Payload, nil)
	if len(compressed) < len(msg.Payload) {
		msg.Payload = compressed
		msg.Compression = CompressionZstd
	}
}

// Decompress распаковывает нагрузку сообщения при необходимости.
func Decompress(msg *Message) error {
	if msg.Compression == CompressionNone {
		return nil
	}

	if msg.Compression != CompressionZstd {
		return fmt.Errorf("неизвестный тип сжатия: %d", msg.Compression)
	}

	initZstd()
	if zstdDecoder == nil {
		return fmt.Errorf("zstd декодер недоступен")
	}

	decompressed, err := zstdDecoder.DecodeAll(msg.Payload, nil)
	if err != nil {
		return fmt.Errorf("ошибка распаковки zstd: %w", err)
	}

	msg.Payload = decompressed
	msg.Compression = CompressionNone
	return nil
}
