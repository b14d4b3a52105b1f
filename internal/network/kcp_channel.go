package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/protocol"
)

// KCPChannel реализует NetChannel для KCP (надёжный UDP).
// Подходит для стриминга телеметрии с низкой задержкой.
type KCPChannel struct {
	conn   *kcp.UDPSession
	config *ChannelConfig
	logger *logging.Logger

	// Статистика
	stats ConnectionStats

	onDisconnect func(error)

	// Контроль выполнения
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Буферы
	sendBuffer chan *protocol.Message
	recvBuffer chan *protocol.Message

	sendSequence uint32

	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewKCPChannel создаёт новый неподключённый KCP канал
func NewKCPChannel(config *ChannelConfig, logger *logging.Logger) *KCPChannel {
	ctx, cancel := context.WithCancel(context.Background())

	return &KCPChannel{
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan *protocol.Message, config.BufferSize),
		recvBuffer: make(chan *protocol.Message, config.BufferSize),
	}
}

// NewKCPChannelFromConn создаёт KCP канал из существующего соединения
func NewKCPChannelFromConn(conn *kcp.UDPSession, config *ChannelConfig, logger *logging.Logger) *KCPChannel {
	ctx, cancel := context.WithCancel(context.Background())

	channel := &KCPChannel{
		conn:       conn,
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan *protocol.Message, config.BufferSize),
		recvBuffer: make(chan *protocol.Message, config.BufferSize),
	}

	tuneKCP(conn)

	channel.stats.Connected = true
	channel.stats.RemoteAddr = conn.RemoteAddr().String()
	channel.stats.LastActivity = time.Now()

	channel.wg.Add(2)
	go channel.sendLoop()
	go channel.receiveLoop()

	logger.Debug("KCP channel created from connection: addr=%s", conn.RemoteAddr().String())
	return channel
}

// tuneKCP настраивает параметры KCP под телеметрийный трафик
func tuneKCP(conn *kcp.UDPSession) {
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для низкой задержки
	conn.SetWindowSize(512, 512)
	conn.SetMtu(1400)
}

// Connect устанавливает соединение с сервером
func (kc *KCPChannel) Connect(ctx context.Context, addr string) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if kc.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	tuneKCP(conn)

	kc.conn = conn
	kc.stats.Connected = true
	kc.stats.RemoteAddr = addr
	kc.stats.LastActivity = time.Now()

	kc.wg.Add(2)
	go kc.sendLoop()
	go kc.receiveLoop()

	kc.logger.Info("KCP channel connected: addr=%s", addr)
	return nil
}

// Send отправляет сообщение
func (kc *KCPChannel) Send(ctx context.Context, msg *protocol.Message, opts *SendOptions) error {
	if !kc.IsConnected() {
		return fmt.Errorf("not connected")
	}

	msg.Sequence = atomic.AddUint32(&kc.sendSequence, 1)

	if opts != nil {
		msg.Flags = opts.Flags
		if opts.Compress {
			protocol.MaybeCompress(msg)
		}
	} else if kc.config.Compress {
		protocol.MaybeCompress(msg)
	}

	select {
	case kc.sendBuffer <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-kc.ctx.Done():
		return fmt.Errorf("channel closed")
	}
}

// Receive получает сообщение
func (kc *KCPChannel) Receive(ctx context.Context) (*protocol.Message, error) {
	select {
	case msg := <-kc.recvBuffer:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-kc.ctx.Done():
		return nil, fmt.Errorf("channel closed")
	}
}

// Close закрывает канал
func (kc *KCPChannel) Close() error {
	var err error
	kc.closeOnce.Do(func() {
		kc.cancel()

		kc.mu.Lock()
		conn := kc.conn
		kc.conn = nil
		kc.stats.Connected = false
		kc.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}

		kc.wg.Wait()

		if kc.onDisconnect != nil {
			kc.onDisconnect(err)
		}

		kc.logger.Debug("KCP channel closed")
	})
	return err
}

// IsConnected проверяет состояние соединения
func (kc *KCPChannel) IsConnected() bool {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.stats.Connected && kc.conn != nil
}

// RemoteAddr возвращает адрес удалённого узла
func (kc *KCPChannel) RemoteAddr() string {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.stats.RemoteAddr
}

// Stats возвращает статистику соединения
func (kc *KCPChannel) Stats() ConnectionStats {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	return kc.stats
}

// RTT возвращает сглаженный RTT сессии KCP
func (kc *KCPChannel) RTT() time.Duration {
	kc.mu.RLock()
	defer kc.mu.RUnlock()
	if kc.conn == nil {
		return 0
	}
	return time.Duration(kc.conn.GetSRTT()) * time.Millisecond
}

// SetTimeout устанавливает таймаут для операций
func (kc *KCPChannel) SetTimeout(timeout time.Duration) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if kc.conn != nil {
		return kc.conn.SetDeadline(time.Now().Add(timeout))
	}
	return fmt.Errorf("not connected")
}

// SetKeepAlive для KCP не применим — надёжность обеспечивает сам протокол
func (kc *KCPChannel) SetKeepAlive(interval time.Duration) error {
	return nil
}

// OnDisconnect устанавливает обработчик отключения
func (kc *KCPChannel) OnDisconnect(handler func(error)) {
	kc.onDisconnect = handler
}

// sendLoop отправляет сообщения
func (kc *KCPChannel) sendLoop() {
	defer kc.wg.Done()

	for {
		select {
		case msg := <-kc.sendBuffer:
			if err := kc.sendMessage(msg); err != nil {
				kc.logger.Error("Failed to send message: %v", err)
			}
		case <-kc.ctx.Done():
			return
		}
	}
}

// receiveLoop получает сообщения
func (kc *KCPChannel) receiveLoop() {
	defer kc.wg.Done()

	for {
		select {
		case <-kc.ctx.Done():
			return
		default:
		}

		msg, err := kc.receiveMessage()
		if err != nil {
			select {
			case <-kc.ctx.Done():
			default:
				if err != io.EOF {
					kc.logger.Error("Failed to receive message: %v", err)
				}
			}
			return
		}

		kc.mu.Lock()
		kc.stats.LastActivity = time.Now()
		kc.stats.PacketsReceived++
		kc.mu.Unlock()

		select {
		case kc.recvBuffer <- msg:
		default:
			kc.logger.Warn("Receive buffer full, dropping message type=%s", msg.Type)
		}
	}
}

// sendMessage отправляет одно сообщение
func (kc *KCPChannel) sendMessage(msg *protocol.Message) error {
	kc.mu.RLock()
	conn := kc.conn
	kc.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	frame := protocol.EncodeFrame(msg)

	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(frame)))
	copy(buf[4:], frame)

	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	kc.mu.Lock()
	kc.stats.PacketsSent++
	kc.stats.BytesSent += uint64(len(buf))
	kc.mu.Unlock()

	return nil
}

// receiveMessage получает одно сообщение
func (kc *KCPChannel) receiveMessage() (*protocol.Message, error) {
	kc.mu.RLock()
	conn := kc.conn
	kc.mu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	sizeBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, sizeBuf); err != nil {
		return nil, err
	}

	frameSize := binary.BigEndian.Uint32(sizeBuf)
	if frameSize > protocol.MaxMessageSize {
		return nil, fmt.Errorf("frame too large: %d bytes", frameSize)
	}

	data := make([]byte, frameSize)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}

	msg, err := protocol.DecodeFrame(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	if err := protocol.Decompress(msg); err != nil {
		return nil, err
	}

	kc.mu.Lock()
	kc.stats.BytesReceived += uint64(len(data) + 4)
	kc.mu.Unlock()

	return msg, nil
}
