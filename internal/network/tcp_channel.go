package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/protocol"
)

// TCPChannel реализует NetChannel для TCP соединений
type TCPChannel struct {
	conn   net.Conn
	config *ChannelConfig
	logger *logging.Logger

	// Статистика
	stats ConnectionStats

	// Обработчики событий
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

// NewTCPChannel создаёт новый неподключённый TCP канал
func NewTCPChannel(config *ChannelConfig, logger *logging.Logger) *TCPChannel {
	ctx, cancel := context.WithCancel(context.Background())

	return &TCPChannel{
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan *protocol.Message, config.BufferSize),
		recvBuffer: make(chan *protocol.Message, config.BufferSize),
	}
}

// NewTCPChannelFromConn создаёт TCP канал из существующего соединения
func NewTCPChannelFromConn(conn net.Conn, config *ChannelConfig, logger *logging.Logger) *TCPChannel {
	ctx, cancel := context.WithCancel(context.Background())

	channel := &TCPChannel{
		conn:       conn,
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		sendBuffer: make(chan *protocol.Message, config.BufferSize),
		recvBuffer: make(chan *protocol.Message, config.BufferSize),
	}

	channel.stats.Connected = true
	channel.stats.RemoteAddr = conn.RemoteAddr().String()
	channel.stats.LastActivity = time.Now()

	channel.wg.Add(2)
	go channel.sendLoop()
	go channel.receiveLoop()

	logger.Debug("TCP channel created from connection: addr=%s", conn.RemoteAddr().String())
	return channel
}

// Connect устанавливает соединение с сервером
func (tc *TCPChannel) Connect(ctx context.Context, addr string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.conn != nil {
		return fmt.Errorf("already connected")
	}

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	tc.conn = conn
	tc.stats.Connected = true
	tc.stats.RemoteAddr = addr
	tc.stats.LastActivity = time.Now()

	tc.wg.Add(2)
	go tc.sendLoop()
	go tc.receiveLoop()

	tc.logger.Info("TCP channel connected: addr=%s", addr)
	return nil
}

// Send отправляет сообщение
func (tc *TCPChannel) Send(ctx context.Context, msg *protocol.Message, opts *SendOptions) error {
	if !tc.IsConnected() {
		return fmt.Errorf("not connected")
	}

	msg.Sequence = atomic.AddUint32(&tc.sendSequence, 1)

	if opts != nil {
		msg.Flags = opts.Flags
		if opts.Compress {
			protocol.MaybeCompress(msg)
		}
	} else if tc.config.Compress {
		protocol.MaybeCompress(msg)
	}

	select {
	case tc.sendBuffer <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-tc.ctx.Done():
		return fmt.Errorf("channel closed")
	}
}

// Receive получает сообщение
func (tc *TCPChannel) Receive(ctx context.Context) (*protocol.Message, error) {
	select {
	case msg := <-tc.recvBuffer:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tc.ctx.Done():
		return nil, fmt.Errorf("channel closed")
	}
}

// Close закрывает канал
func (tc *TCPChannel) Close() error {
	var err error
	tc.closeOnce.Do(func() {
		tc.cancel()

		tc.mu.Lock()
		conn := tc.conn
		tc.conn = nil
		tc.stats.Connected = false
		tc.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}

		tc.wg.Wait()

		if tc.onDisconnect != nil {
			tc.onDisconnect(err)
		}

		tc.logger.Debug("TCP channel closed")
	})
	return err
}

// IsConnected проверяет состояние соединения
func (tc *TCPChannel) IsConnected() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.stats.Connected && tc.conn != nil
}

// RemoteAddr возвращает адрес удалённого узла
func (tc *TCPChannel) RemoteAddr() string {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.stats.RemoteAddr
}

// Stats возвращает статистику соединения
func (tc *TCPChannel) Stats() ConnectionStats {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.stats
}

// RTT возвращает задержку (TCP не измеряет RTT на уровне канала)
func (tc *TCPChannel) RTT() time.Duration {
	return 0
}

// SetTimeout устанавливает таймаут для операций
func (tc *TCPChannel) SetTimeout(timeout time.Duration) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.conn != nil {
		return tc.conn.SetDeadline(time.Now().Add(timeout))
	}
	return fmt.Errorf("not connected")
}

// SetKeepAlive устанавливает keep-alive для TCP соединения
func (tc *TCPChannel) SetKeepAlive(interval time.Duration) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tcpConn, ok := tc.conn.(*net.TCPConn); ok {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		return tcpConn.SetKeepAlivePeriod(interval)
	}
	return fmt.Errorf("not a TCP connection")
}

// OnDisconnect устанавливает обработчик отключения
func (tc *TCPChannel) OnDisconnect(handler func(error)) {
	tc.onDisconnect = handler
}

// sendLoop отправляет сообщения
func (tc *TCPChannel) sendLoop() {
	defer tc.wg.Done()

	for {
		select {
		case msg := <-tc.sendBuffer:
			if err := tc.sendMessage(msg); err != nil {
				tc.logger.Error("Failed to send message: %v", err)
			}
		case <-tc.ctx.Done():
			return
		}
	}
}

// receiveLoop получает сообщения
func (tc *TCPChannel) receiveLoop() {
	defer tc.wg.Done()

	for {
		select {
		case <-tc.ctx.Done():
			return
		default:
		}

		msg, err := tc.receiveMessage()
		if err != nil {
			if err == io.EOF {
				tc.logger.Debug("Connection closed by remote")
			} else {
				select {
				case <-tc.ctx.Done():
					// закрытие канала гонится с чтением, это не ошибка
				default:
					tc.logger.Error("Failed to receive message: %v", err)
				}
			}
			return
		}

		tc.mu.Lock()
		tc.stats.LastActivity = time.Now()
		tc.stats.PacketsReceived++
		tc.mu.Unlock()

		select {
		case tc.recvBuffer <- msg:
		default:
			tc.logger.Warn("Receive buffer full, dropping message type=%s", msg.Type)
		}
	}
}

// sendMessage отправляет одно сообщение
func (tc *TCPChannel) sendMessage(msg *protocol.Message) error {
	tc.mu.RLock()
	conn := tc.conn
	tc.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	frame := protocol.EncodeFrame(msg)

	// Префикс длины (4 байта) + кадр одним вызовом Write
	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(frame)))
	copy(buf[4:], frame)

	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	tc.mu.Lock()
	tc.stats.PacketsSent++
	tc.stats.BytesSent += uint64(len(buf))
	tc.mu.Unlock()

	return nil
}

// receiveMessage получает одно сообщение
func (tc *TCPChannel) receiveMessage() (*protocol.Message, error) {
	tc.mu.RLock()
	conn := tc.conn
	tc.mu.RUnlock()
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

	tc.mu.Lock()
	tc.stats.BytesReceived += uint64(len(data) + 4)
	tc.mu.Unlock()

	return msg, nil
}
