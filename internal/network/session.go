package network

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/flight-telemetry/internal/eventbus"
	"github.com/annel0/flight-telemetry/internal/protocol"
	"github.com/annel0/flight-telemetry/internal/sim"
)

// Session обслуживает одного клиента: рукопожатие, запросы, потоки.
type Session struct {
	id      string
	server  *TelemetryServer
	channel NetChannel
	ser     *protocol.MessageSerializer

	authed   bool
	userID   uint64
	username string

	streams   map[string]context.CancelFunc
	streamsMu sync.Mutex

	closeOnce sync.Once
}

func newSession(server *TelemetryServer, channel NetChannel) *Session {
	return &Session{
		id:      uuid.NewString(),
		server:  server,
		channel: channel,
		ser:     protocol.NewMessageSerializer(),
		streams: make(map[string]context.CancelFunc),
	}
}

// run крутит цикл приёма до отключения клиента или остановки сервера
func (s *Session) run(ctx context.Context) {
	s.publishSessionEvent("connected")
	defer func() {
		s.close()
		s.publishSessionEvent("disconnected")
	}()

	for {
		msg, err := s.channel.Receive(ctx)
		if err != nil {
			return
		}

		s.server.metrics.MessageIn(msg.Type.String(), len(msg.Payload))

		if err := s.dispatch(ctx, msg); err != nil {
			s.server.logger.Warn("Session %s dispatch error: %v", s.id, err)
			s.server.metrics.ProtocolError()
			// Обработчик упал, не ответив, — клиент не должен ждать таймаута
			_ = s.sendError(ctx, protocol.ErrCodeInternal, "internal error")
		}
	}
}

// close останавливает все потоки и закрывает канал
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.streamsMu.Lock()
		for id, cancel := range s.streams {
			cancel()
			delete(s.streams, id)
			s.server.metrics.StreamStopped()
		}
		s.streamsMu.Unlock()

		_ = s.channel.Close()
	})
}

// dispatch обрабатывает одно входящее сообщение
func (s *Session) dispatch(ctx context.Context, msg *protocol.Message) error {
	switch msg.Type {
	case protocol.MsgAuth:
		return s.handleAuth(ctx, msg)
	case protocol.MsgPing:
		return s.handlePing(ctx, msg)
	}

	// Остальные запросы требуют аутентификации, если она включена
	if s.server.cfg.RequireAuth && !s.authed {
		return s.sendError(ctx, protocol.ErrCodeUnauthorized, "authentication required")
	}

	switch msg.Type {
	case protocol.MsgVesselList:
		return s.handleVesselList(ctx)
	case protocol.MsgActiveVessel:
		return s.handleActiveVessel(ctx)
	case protocol.MsgFlightQuery:
		return s.handleFlightQuery(ctx, msg)
	case protocol.MsgStreamSubscribe:
		return s.handleStreamSubscribe(ctx, msg)
	case protocol.MsgStreamUnsubscribe:
		return s.handleStreamUnsubscribe(ctx, msg)
	default:
		return s.sendError(ctx, protocol.ErrCodeBadRequest, "unknown message type")
	}
}

func (s *Session) handleAuth(ctx context.Context, msg *protocol.Message) error {
	var req protocol.AuthRequest
	if err := s.ser.UnmarshalPayload(msg.Payload, &req); err != nil {
		return s.sendError(ctx, protocol.ErrCodeBadRequest, "malformed auth request")
	}

	// Без аутентификатора любой клиент получает анонимный доступ
	if s.server.authn == nil {
		s.authed = true
		s.username = req.Username
		return s.reply(ctx, protocol.MsgAuthResponse, protocol.AuthResponse{
			Success:  true,
			ServerID: s.server.cfg.ServerID,
		})
	}

	var result *AuthResult
	var err error
	if req.Token != "" {
		result, err = s.server.authn.ValidateToken(req.Token)
	} else {
		result, err = s.server.authn.AuthenticateCredentials(ctx, req.Username, req.Password)
	}

	if err != nil {
		s.server.logger.Warn("Session %s auth failed: %v", s.id, err)
		return s.reply(ctx, protocol.MsgAuthResponse, protocol.AuthResponse{
			Success: false,
			Message: "invalid credentials",
		})
	}

	s.authed = true
	s.userID = result.UserID
	s.username = result.Username

	return s.reply(ctx, protocol.MsgAuthResponse, protocol.AuthResponse{
		Success:  true,
		Token:    result.Token,
		UserID:   result.UserID,
		IsAdmin:  result.IsAdmin,
		ServerID: s.server.cfg.ServerID,
	})
}

func (s *Session) handlePing(ctx context.Context, msg *protocol.Message) error {
	var req protocol.PingRequest
	_ = s.ser.UnmarshalPayload(msg.Payload, &req)

	return s.reply(ctx, protocol.MsgPong, protocol.PongResponse{
		ClientTime: req.ClientTime,
		ServerTime: time.Now().UnixNano(),
	})
}

func (s *Session) handleVesselList(ctx context.Context) error {
	return s.reply(ctx, protocol.MsgVesselListResponse, protocol.VesselListResponse{
		Vessels: s.server.simulation.VesselInfos(),
	})
}

func (s *Session) handleActiveVessel(ctx context.Context) error {
	id, name, err := s.server.simulation.ActiveVesselID()
	if err != nil {
		return s.sendError(ctx, protocol.ErrCodeNoActiveShip, "no active vessel")
	}

	return s.reply(ctx, protocol.MsgActiveVesselResponse, protocol.ActiveVesselResponse{
		VesselID: id,
		Name:     name,
	})
}

func (s *Session) handleFlightQuery(ctx context.Context, msg *protocol.Message) error {
	var req protocol.FlightQuery
	if err := s.ser.UnmarshalPayload(msg.Payload, &req); err != nil {
		return s.sendError(ctx, protocol.ErrCodeBadRequest, "malformed flight query")
	}

	fd, err := s.server.simulation.Flight(req.VesselID)
	if err != nil {
		return s.flightError(ctx, err)
	}

	return s.reply(ctx, protocol.MsgFlightData, fd)
}

func (s *Session) handleStreamSubscribe(ctx context.Context, msg *protocol.Message) error {
	var req protocol.StreamSubscribe
	if err := s.ser.UnmarshalPayload(msg.Payload, &req); err != nil {
		return s.sendError(ctx, protocol.ErrCodeBadRequest, "malformed stream subscribe")
	}

	// Проверяем судно до запуска потока
	if _, err := s.server.simulation.Flight(req.VesselID); err != nil {
		return s.flightError(ctx, err)
	}

	streamID := uuid.NewString()
	interval := s.server.streamInterval(req.RateHz)

	streamCtx, cancel := context.WithCancel(ctx)
	s.streamsMu.Lock()
	s.streams[streamID] = cancel
	s.streamsMu.Unlock()
	s.server.metrics.StreamStarted()
	s.publishStreamEvent(streamID, "started")

	go s.streamLoop(streamCtx, streamID, req.VesselID, interval)

	rate := int(float64(time.Second) / float64(interval))
	return s.reply(ctx, protocol.MsgStreamAck, protocol.StreamAck{
		StreamID: streamID,
		RateHz:   rate,
	})
}

func (s *Session) handleStreamUnsubscribe(ctx context.Context, msg *protocol.Message) error {
	var req protocol.StreamUnsubscribe
	if err := s.ser.UnmarshalPayload(msg.Payload, &req); err != nil {
		return s.sendError(ctx, protocol.ErrCodeBadRequest, "malformed stream unsubscribe")
	}

	s.streamsMu.Lock()
	cancel, exists := s.streams[req.StreamID]
	if exists {
		cancel()
		delete(s.streams, req.StreamID)
	}
	s.streamsMu.Unlock()

	if !exists {
		return s.sendError(ctx, protocol.ErrCodeNotFound, "stream not found")
	}

	s.server.metrics.StreamStopped()
	s.publishStreamEvent(req.StreamID, "stopped")
	return s.reply(ctx, protocol.MsgStreamAck, protocol.StreamAck{StreamID: req.StreamID})
}

// streamLoop рассылает кадры телеметрии с фиксированным периодом
func (s *Session) streamLoop(ctx context.Context, streamID, vesselID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fd, err := s.server.simulation.Flight(vesselID)
			if err != nil {
				_ = s.sendError(ctx, protocol.ErrCodeNotFound, "vessel lost: "+err.Error())
				s.streamsMu.Lock()
				if cancel, ok := s.streams[streamID]; ok {
					cancel()
					delete(s.streams, streamID)
					s.server.metrics.StreamStopped()
				}
				s.streamsMu.Unlock()
				return
			}

			err = s.replyOpts(ctx, protocol.MsgStreamData, protocol.StreamData{
				StreamID: streamID,
				Frame:    fd,
			}, &SendOptions{Flags: protocol.FlagUnsequenced, Compress: true})
			if err != nil {
				return
			}
		}
	}
}

// flightError переводит ошибку симуляции в протокольную
func (s *Session) flightError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, sim.ErrNoActiveVessel):
		return s.sendError(ctx, protocol.ErrCodeNoActiveShip, "no active vessel")
	case errors.Is(err, sim.ErrVesselNotFound):
		return s.sendError(ctx, protocol.ErrCodeNotFound, "vessel not found")
	default:
		return s.sendError(ctx, protocol.ErrCodeInternal, err.Error())
	}
}

// reply отправляет ответ с нагрузкой указанного типа
func (s *Session) reply(ctx context.Context, msgType protocol.MsgType, payload interface{}) error {
	return s.replyOpts(ctx, msgType, payload, &SendOptions{Flags: protocol.FlagReliable | protocol.FlagOrdered})
}

func (s *Session) replyOpts(ctx context.Context, msgType protocol.MsgType, payload interface{}, opts *SendOptions) error {
	msg, err := s.ser.BuildMessage(msgType, payload)
	if err != nil {
		return err
	}

	if err := s.channel.Send(ctx, msg, opts); err != nil {
		return err
	}

	s.server.metrics.MessageOut(msgType.String(), len(msg.Payload))
	return nil
}

// sendError отправляет клиенту протокольную ошибку
func (s *Session) sendError(ctx context.Context, code int, message string) error {
	return s.reply(ctx, protocol.MsgError, protocol.ErrorMessage{
		Code:    code,
		Message: message,
	})
}

// publishSessionEvent публикует событие жизненного цикла сессии
func (s *Session) publishSessionEvent(phase string) {
	payload, err := json.Marshal(map[string]string{
		"session_id": s.id,
		"phase":      phase,
		"addr":       s.channel.RemoteAddr(),
		"username":   s.username,
	})
	if err != nil {
		return
	}

	_ = eventbus.Publish(context.Background(), &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "network",
		EventType: eventbus.EventClientSession,
		Version:   1,
		Payload:   payload,
	})
}

// publishStreamEvent публикует событие жизненного цикла потока
func (s *Session) publishStreamEvent(streamID, phase string) {
	payload, err := json.Marshal(map[string]string{
		"session_id": s.id,
		"stream_id":  streamID,
		"phase":      phase,
	})
	if err != nil {
		return
	}

	_ = eventbus.Publish(context.Background(), &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    "network",
		EventType: eventbus.EventStreamLifecycle,
		Version:   1,
		Payload:   payload,
	})
}
