package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/sim"
)

// Authenticator проверяет учётные данные клиентов сокет-протокола.
// Реализуется пакетом auth; nil означает анонимный доступ.
type Authenticator interface {
	AuthenticateCredentials(ctx context.Context, username, password string) (*AuthResult, error)
	ValidateToken(token string) (*AuthResult, error)
}

// AuthResult результат успешной аутентификации
type AuthResult struct {
	UserID   uint64
	Username string
	IsAdmin  bool
	Token    string
}

// ServerConfig конфигурация сервера телеметрии
type ServerConfig struct {
	TCPAddr      string
	KCPAddr      string
	StreamRateHz int
	RequireAuth  bool
	Channel      *ChannelConfig
	ServerID     string
}

// TelemetryServer принимает клиентов по TCP и KCP и обслуживает
// запросы телеметрии поверх единого протокола кадров.
type TelemetryServer struct {
	cfg        ServerConfig
	simulation *sim.Simulation
	authn      Authenticator
	logger     *logging.Logger
	metrics    *NetworkMetrics

	tcpListener net.Listener
	kcpListener *kcp.Listener

	sessions map[string]*Session
	mu       sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelemetryServer создаёт сервер телеметрии
func NewTelemetryServer(cfg ServerConfig, simulation *sim.Simulation, authn Authenticator) *TelemetryServer {
	if cfg.StreamRateHz <= 0 {
		cfg.StreamRateHz = 10
	}
	if cfg.Channel == nil {
		cfg.Channel = DefaultChannelConfig(ChannelTCP)
	}
	if cfg.ServerID == "" {
		cfg.ServerID = "flight-telemetry"
	}

	return &TelemetryServer{
		cfg:        cfg,
		simulation: simulation,
		authn:      authn,
		logger:     logging.GetNetworkLogger(),
		metrics:    GetNetworkMetrics(),
		sessions:   make(map[string]*Session),
	}
}

// Start запускает слушатели и accept-циклы
func (ts *TelemetryServer) Start() error {
	ts.ctx, ts.cancel = context.WithCancel(context.Background())

	if ts.cfg.TCPAddr != "" {
		listener, err := net.Listen("tcp", ts.cfg.TCPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on tcp %s: %w", ts.cfg.TCPAddr, err)
		}
		ts.tcpListener = listener

		ts.wg.Add(1)
		go ts.acceptTCPLoop()
		ts.logger.Info("Telemetry server listening: tcp=%s", ts.cfg.TCPAddr)
	}

	if ts.cfg.KCPAddr != "" {
		listener, err := kcp.ListenWithOptions(ts.cfg.KCPAddr, nil, 0, 0)
		if err != nil {
			ts.closeListeners()
			return fmt.Errorf("failed to listen on kcp %s: %w", ts.cfg.KCPAddr, err)
		}
		ts.kcpListener = listener

		ts.wg.Add(1)
		go ts.acceptKCPLoop()
		ts.logger.Info("Telemetry server listening: kcp=%s", ts.cfg.KCPAddr)
	}

	if ts.tcpListener == nil && ts.kcpListener == nil {
		return errors.New("no listen addresses configured")
	}

	return nil
}

// Addr возвращает фактический адрес TCP-слушателя (для тестов с портом 0)
func (ts *TelemetryServer) Addr() string {
	if ts.tcpListener == nil {
		return ""
	}
	return ts.tcpListener.Addr().String()
}

// Stop останавливает сервер и закрывает все сессии
func (ts *TelemetryServer) Stop() {
	if ts.cancel != nil {
		ts.cancel()
	}

	ts.closeListeners()

	ts.mu.Lock()
	sessions := make([]*Session, 0, len(ts.sessions))
	for _, s := range ts.sessions {
		sessions = append(sessions, s)
	}
	ts.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}

	ts.wg.Wait()
	ts.logger.Info("Telemetry server stopped")
}

func (ts *TelemetryServer) closeListeners() {
	if ts.tcpListener != nil {
		_ = ts.tcpListener.Close()
	}
	if ts.kcpListener != nil {
		_ = ts.kcpListener.Close()
	}
}

// acceptTCPLoop принимает TCP соединения
func (ts *TelemetryServer) acceptTCPLoop() {
	defer ts.wg.Done()

	for {
		conn, err := ts.tcpListener.Accept()
		if err != nil {
			select {
			case <-ts.ctx.Done():
			default:
				ts.logger.Error("TCP accept error: %v", err)
			}
			return
		}

		cfg := *ts.cfg.Channel
		cfg.Type = ChannelTCP
		channel := NewTCPChannelFromConn(conn, &cfg, ts.logger)
		ts.startSession(channel)
	}
}

// acceptKCPLoop принимает KCP соединения
func (ts *TelemetryServer) acceptKCPLoop() {
	defer ts.wg.Done()

	for {
		conn, err := ts.kcpListener.AcceptKCP()
		if err != nil {
			select {
			case <-ts.ctx.Done():
			default:
				ts.logger.Error("KCP accept error: %v", err)
			}
			return
		}

		cfg := *ts.cfg.Channel
		cfg.Type = ChannelKCP
		channel := NewKCPChannelFromConn(conn, &cfg, ts.logger)
		ts.startSession(channel)
	}
}

// startSession регистрирует сессию и запускает её цикл обработки
func (ts *TelemetryServer) startSession(channel NetChannel) {
	session := newSession(ts, channel)

	ts.mu.Lock()
	ts.sessions[session.id] = session
	ts.mu.Unlock()

	ts.metrics.SessionOpened()
	ts.logger.Info("Session %s opened: addr=%s", session.id, channel.RemoteAddr())

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		session.run(ts.ctx)
		ts.removeSession(session.id)
	}()
}

// removeSession снимает сессию с учёта
func (ts *TelemetryServer) removeSession(id string) {
	ts.mu.Lock()
	_, exists := ts.sessions[id]
	delete(ts.sessions, id)
	ts.mu.Unlock()

	if exists {
		ts.metrics.SessionClosed()
		ts.logger.Info("Session %s closed", id)
	}
}

// SessionCount возвращает число активных сессий
func (ts *TelemetryServer) SessionCount() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.sessions)
}

// streamInterval возвращает период рассылки для запрошенной частоты,
// ограниченной конфигурацией сервера
func (ts *TelemetryServer) streamInterval(requestedHz int) time.Duration {
	rate := ts.cfg.StreamRateHz
	if requestedHz > 0 && requestedHz < rate {
		rate = requestedHz
	}
	return time.Duration(float64(time.Second) / float64(rate))
}
