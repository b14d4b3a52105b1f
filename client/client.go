// Package client реализует клиент протокола телеметрии.
// Типичный сценарий:
//
//	c, err := client.Connect(ctx, "localhost:50000")
//	vessel, err := c.ActiveVessel(ctx)
//	prograde, err := vessel.Flight().Prograde(ctx)
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/network"
	"github.com/annel0/flight-telemetry/internal/protocol"
)

// DefaultAddr адрес сервера по умолчанию
const DefaultAddr = "localhost:50000"

// DefaultTimeout таймаут одного запроса
const DefaultTimeout = 10 * time.Second

// APIError протокольная ошибка, возвращённая сервером
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// ErrClosed возвращается при операции над закрытым клиентом
var ErrClosed = errors.New("client closed")

// Options настройки подключения
type Options struct {
	UseKCP   bool
	Username string
	Password string
	Token    string
	Timeout  time.Duration
}

// Option модифицирует настройки подключения
type Option func(*Options)

// WithKCP подключается по KCP вместо TCP
func WithKCP() Option {
	return func(o *Options) { o.UseKCP = true }
}

// WithCredentials задаёт логин и пароль для рукопожатия
func WithCredentials(username, password string) Option {
	return func(o *Options) {
		o.Username = username
		o.Password = password
	}
}

// WithToken задаёт JWT токен для рукопожатия
func WithToken(token string) Option {
	return func(o *Options) { o.Token = token }
}

// WithTimeout задаёт таймаут запросов
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// Client представляет подключение к серверу телеметрии.
// Запросы сериализуются: одновременно выполняется один запрос.
type Client struct {
	channel network.NetChannel
	ser     *protocol.MessageSerializer
	logger  *logging.Logger
	timeout time.Duration
	token   string

	reqMu     sync.Mutex // сериализация запросов
	responses chan *protocol.Message

	streamsMu sync.Mutex
	streams   map[string]chan protocol.FlightData

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Connect подключается к серверу и выполняет рукопожатие.
// Пустой addr означает DefaultAddr.
func Connect(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	options := Options{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	if addr == "" {
		addr = DefaultAddr
	}

	channelType := network.ChannelTCP
	if options.UseKCP {
		channelType = network.ChannelKCP
	}

	factory := network.NewChannelFactory()
	channel, err := factory.CreateChannel(network.DefaultChannelConfig(channelType))
	if err != nil {
		return nil, err
	}

	if err := channel.Connect(ctx, addr); err != nil {
		return nil, err
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		channel:   channel,
		ser:       protocol.NewMessageSerializer(),
		logger:    logging.GetComponentLogger("client"),
		timeout:   options.Timeout,
		responses: make(chan *protocol.Message, 16),
		streams:   make(map[string]chan protocol.FlightData),
		ctx:       clientCtx,
		cancel:    cancel,
	}

	c.wg.Add(1)
	go c.demuxLoop()

	if err := c.handshake(ctx, options); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// handshake выполняет аутентификацию на сервере
func (c *Client) handshake(ctx context.Context, options Options) error {
	resp, err := c.request(ctx, protocol.MsgAuth, protocol.AuthRequest{
		Username: options.Username,
		Password: options.Password,
		Token:    options.Token,
	}, protocol.MsgAuthResponse)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	var authResp protocol.AuthResponse
	if err := c.ser.UnmarshalPayload(resp.Payload, &authResp); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	if !authResp.Success {
		return &APIError{Code: protocol.ErrCodeUnauthorized, Message: authResp.Message}
	}

	c.token = authResp.Token
	return nil
}

// Token возвращает JWT токен, выданный сервером при рукопожатии
func (c *Client) Token() string {
	return c.token
}

// Close закрывает подключение и все активные потоки
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.channel.Close()
		c.wg.Wait()

		c.streamsMu.Lock()
		for id, ch := range c.streams {
			close(ch)
			delete(c.streams, id)
		}
		c.streamsMu.Unlock()
	})
	return err
}

// demuxLoop распределяет входящие сообщения: кадры потоков уходят
// подписчикам, всё остальное — ожидающему запросу.
func (c *Client) demuxLoop() {
	defer c.wg.Done()

	for {
		msg, err := c.channel.Receive(c.ctx)
		if err != nil {
			return
		}

		if msg.Type == protocol.MsgStreamData {
			c.deliverStreamFrame(msg)
			continue
		}

		select {
		case c.responses <- msg:
		default:
			c.logger.Warn("Response buffer full, dropping message type=%s", msg.Type)
		}
	}
}

// deliverStreamFrame доставляет кадр потока подписчику
func (c *Client) deliverStreamFrame(msg *protocol.Message) {
	var sd protocol.StreamData
	if err := c.ser.UnmarshalPayload(msg.Payload, &sd); err != nil {
		c.logger.Warn("Malformed stream frame: %v", err)
		return
	}

	// Отправка под локом: Close может закрыть канал конкурентно
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	ch, exists := c.streams[sd.StreamID]
	if !exists {
		return
	}

	select {
	case ch <- sd.Frame:
	default:
		// Подписчик не успевает — кадр устарел, дропаем
	}
}

// request выполняет синхронный запрос и ждёт ответ ожидаемого типа
func (c *Client) request(ctx context.Context, reqType protocol.MsgType, payload interface{}, wantType protocol.MsgType) (*protocol.Message, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	ctx, cancelTimeout := context.WithTimeout(ctx, c.timeout)
	defer cancelTimeout()

	msg, err := c.ser.BuildMessage(reqType, payload)
	if err != nil {
		return nil, err
	}

	opts := &network.SendOptions{Flags: protocol.FlagReliable | protocol.FlagOrdered}
	if err := c.channel.Send(ctx, msg, opts); err != nil {
		return nil, err
	}

	for {
		select {
		case resp := <-c.responses:
			switch resp.Type {
			case wantType:
				return resp, nil
			case protocol.MsgError:
				var em protocol.ErrorMessage
				if err := c.ser.UnmarshalPayload(resp.Payload, &em); err != nil {
					return nil, fmt.Errorf("malformed error response: %w", err)
				}
				return nil, &APIError{Code: em.Code, Message: em.Message}
			default:
				// Устаревший ответ предыдущего запроса — пропускаем
				c.logger.Debug("Skipping stale response type=%s", resp.Type)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ctx.Done():
			return nil, ErrClosed
		}
	}
}

// Ping измеряет время обращения к серверу
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	resp, err := c.request(ctx, protocol.MsgPing, protocol.PingRequest{
		ClientTime: start.UnixNano(),
	}, protocol.MsgPong)
	if err != nil {
		return 0, err
	}

	var pong protocol.PongResponse
	if err := c.ser.UnmarshalPayload(resp.Payload, &pong); err != nil {
		return 0, err
	}

	return time.Since(start), nil
}

// Vessels возвращает список судов симуляции
func (c *Client) Vessels(ctx context.Context) ([]protocol.VesselInfo, error) {
	resp, err := c.request(ctx, protocol.MsgVesselList, struct{}{}, protocol.MsgVesselListResponse)
	if err != nil {
		return nil, err
	}

	var list protocol.VesselListResponse
	if err := c.ser.UnmarshalPayload(resp.Payload, &list); err != nil {
		return nil, err
	}
	return list.Vessels, nil
}

// ActiveVessel возвращает хэндл активного судна
func (c *Client) ActiveVessel(ctx context.Context) (*Vessel, error) {
	resp, err := c.request(ctx, protocol.MsgActiveVessel, struct{}{}, protocol.MsgActiveVesselResponse)
	if err != nil {
		return nil, err
	}

	var av protocol.ActiveVesselResponse
	if err := c.ser.UnmarshalPayload(resp.Payload, &av); err != nil {
		return nil, err
	}

	return &Vessel{client: c, ID: av.VesselID, Name: av.Name}, nil
}

// Vessel возвращает хэндл судна по идентификатору без обращения к серверу
func (c *Client) Vessel(id string) *Vessel {
	return &Vessel{client: c, ID: id}
}

// flightData запрашивает телеметрию судна
func (c *Client) flightData(ctx context.Context, vesselID string) (protocol.FlightData, error) {
	resp, err := c.request(ctx, protocol.MsgFlightQuery, protocol.FlightQuery{
		VesselID: vesselID,
	}, protocol.MsgFlightData)
	if err != nil {
		return protocol.FlightData{}, err
	}

	var fd protocol.FlightData
	if err := c.ser.UnmarshalPayload(resp.Payload, &fd); err != nil {
		return protocol.FlightData{}, err
	}
	return fd, nil
}
