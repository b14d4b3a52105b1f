package protocol

import (
	"time"

	"github.com/annel0/flight-telemetry/internal/vec"
)

// MsgType определяет тип сообщения в протоколе телеметрии
type MsgType uint16

const (
	MsgUnknown      MsgType = 0
	MsgAuth         MsgType = 1
	MsgAuthResponse MsgType = 2
	MsgPing         MsgType = 3
	MsgPong         MsgType = 4
	MsgError        MsgType = 5

	// Суда
	MsgVesselList           MsgType = 10
	MsgVesselListResponse   MsgType = 11
	MsgActiveVessel         MsgType = 12
	MsgActiveVesselResponse MsgType = 13

	// Телеметрия полёта
	MsgFlightQuery MsgType = 20
	MsgFlightData  MsgType = 21

	// Стриминг
	MsgStreamSubscribe   MsgType = 30
	MsgStreamData        MsgType = 31
	MsgStreamUnsubscribe MsgType = 32
	MsgStreamAck         MsgType = 33
)

// String возвращает имя типа сообщения для логов
func (t MsgType) String() string {
	switch t {
	case MsgAuth:
		return "Auth"
	case MsgAuthResponse:
		return "AuthResponse"
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	case MsgError:
		return "Error"
	case MsgVesselList:
		return "VesselList"
	case MsgVesselListResponse:
		return "VesselListResponse"
	case MsgActiveVessel:
		return "ActiveVessel"
	case MsgActiveVesselResponse:
		return "ActiveVesselResponse"
	case MsgFlightQuery:
		return "FlightQuery"
	case MsgFlightData:
		return "FlightData"
	case MsgStreamSubscribe:
		return "StreamSubscribe"
	case MsgStreamData:
		return "StreamData"
	case MsgStreamUnsubscribe:
		return "StreamUnsubscribe"
	case MsgStreamAck:
		return "StreamAck"
	default:
		return "Unknown"
	}
}

// NetFlags флаги доставки сообщения
type NetFlags uint8

const (
	// FlagReliable гарантирует доставку сообщения
	FlagReliable NetFlags = 1 << iota
	// FlagOrdered гарантирует порядок доставки сообщений
	FlagOrdered
	// FlagUnsequenced отправляет без гарантии порядка (для стриминга)
	FlagUnsequenced
)

// CompressionType тип сжатия полезной нагрузки
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionZstd CompressionType = 1
)

// Message представляет кадр протокола: заголовок + сериализованная нагрузка
type Message struct {
	Type        MsgType
	Flags       NetFlags
	Compression CompressionType
	Sequence    uint32
	Timestamp   int64 // UnixNano
	Payload     []byte
}

// NewMessage создает сообщение с текущей временной меткой
func NewMessage(msgType MsgType, payload []byte) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixNano(),
		Payload:   payload,
	}
}

//=================== Полезные нагрузки ===================//

// AuthRequest запрос аутентификации при рукопожатии
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// AuthResponse ответ на запрос аутентификации
type AuthResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Token    string `json:"token,omitempty"`
	UserID   uint64 `json:"user_id,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	ServerID string `json:"server_id,omitempty"`
}

// PingRequest запрос проверки соединения
type PingRequest struct {
	ClientTime int64 `json:"client_time"`
}

// PongResponse ответ на ping
type PongResponse struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
}

// ErrorMessage сообщение об ошибке обработки запроса
type ErrorMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Коды ошибок протокола
const (
	ErrCodeBadRequest    = 400
	ErrCodeUnauthorized  = 401
	ErrCodeNotFound      = 404
	ErrCodeInternal      = 500
	ErrCodeNoActiveShip  = 520
	ErrCodeStreamRefused = 521
)

// VesselInfo краткая информация о судне
type VesselInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Active bool   `json:"active"`
}

// VesselListResponse список судов симуляции
type VesselListResponse struct {
	Vessels []VesselInfo `json:"vessels"`
}

// ActiveVesselResponse идентификатор активного судна
type ActiveVesselResponse struct {
	VesselID string `json:"vessel_id"`
	Name     string `json:"name"`
}

// FlightQuery запрос телеметрии полёта.
// Пустой VesselID означает активное судно.
type FlightQuery struct {
	VesselID string `json:"vessel_id,omitempty"`
}

// FlightData телеметрия полёта судна.
// Направляющие векторы выражены в инерциальной системе отсчёта центрального тела.
// Для незамкнутых траекторий Escape = true, а Apoapsis равен -1:
// бесконечный апоцентр не представим в JSON.
type FlightData struct {
	VesselID   string   `json:"vessel_id"`
	Position   vec.Vec3 `json:"position"`
	Velocity   vec.Vec3 `json:"velocity"`
	Prograde   vec.Vec3 `json:"prograde"`
	Retrograde vec.Vec3 `json:"retrograde"`
	Normal     vec.Vec3 `json:"normal"`
	Radial     vec.Vec3 `json:"radial"`
	Speed      float64  `json:"speed"`
	Altitude   float64  `json:"altitude"`
	Apoapsis   float64  `json:"apoapsis"`
	Periapsis  float64  `json:"periapsis"`
	Escape     bool     `json:"escape,omitempty"`
	State      string   `json:"state"`
	SimTime    float64  `json:"sim_time"`
}

// StreamSubscribe запрос подписки на поток телеметрии
type StreamSubscribe struct {
	VesselID string `json:"vessel_id,omitempty"`
	RateHz   int    `json:"rate_hz,omitempty"`
}

// StreamAck подтверждение подписки на поток
type StreamAck struct {
	StreamID string `json:"stream_id"`
	RateHz   int    `json:"rate_hz"`
}

// StreamData кадр потока телеметрии
type StreamData struct {
	StreamID string     `json:"stream_id"`
	Frame    FlightData `json:"frame"`
}

// StreamUnsubscribe запрос отписки от потока
type StreamUnsubscribe struct {
	StreamID string `json:"stream_id"`
}
