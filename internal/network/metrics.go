package network

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// NetworkMetrics экспортирует метрики сетевой подсистемы в Prometheus.
type NetworkMetrics struct {
	activeSessions prometheus.Gauge
	totalSessions  prometheus.Counter
	messagesIn     *prometheus.CounterVec
	messagesOut    *prometheus.CounterVec
	bytesIn        prometheus.Counter
	bytesOut       prometheus.Counter
	protocolErrors prometheus.Counter
	activeStreams  prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *NetworkMetrics
)

// GetNetworkMetrics возвращает singleton метрик сетевой подсистемы.
// Метрики регистрируются в глобальном регистре Prometheus один раз.
func GetNetworkMetrics() *NetworkMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &NetworkMetrics{
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "telemetry",
				Subsystem: "network",
				Name:      "active_sessions",
				Help:      "Текущее количество клиентских сессий.",
			}),
			totalSessions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "telemetry",
				Subsystem: "network",
				Name:      "sessions_total",
				Help:      "Общее число принятых сессий.",
			}),
			messagesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "telemetry",
				Subsystem: "network",
				Name:      "messages_in_total",
				Help:      "Принятые сообщения по типам.",
			}, []string{"type"}),
			messagesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "telemetry",
				Subsystem: "network",
				Name:      "messages_out_total",
				Help:      "Отправленные сообщения по типам.",
			}, []string{"type"}),
			bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "telemetry",
				Subsystem: "network",
				Name:      "bytes_in_total",
				Help:      "Принято байт.",
			}),
			bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "telemetry",
				Subsystem: "network",
				Name:      "bytes_out_total",
				Help:      "Отправлено байт.",
			}),
			protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "telemetry",
				Subsystem: "network",
				Name:      "protocol_errors_total",
				Help:      "Ошибки декодирования и обработки протокола.",
			}),
			activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "telemetry",
				Subsystem: "network",
				Name:      "active_streams",
				Help:      "Текущее количество потоков телеметрии.",
			}),
		}

		prometheus.MustRegister(
			metricsInstance.activeSessions,
			metricsInstance.totalSessions,
			metricsInstance.messagesIn,
			metricsInstance.messagesOut,
			metricsInstance.bytesIn,
			metricsInstance.bytesOut,
			metricsInstance.protocolErrors,
			metricsInstance.activeStreams,
		)
	})
	return metricsInstance
}

// SessionOpened учитывает новую сессию
func (m *NetworkMetrics) SessionOpened() {
	m.totalSessions.Inc()
	m.activeSessions.Inc()
}

// SessionClosed учитывает закрытие сессии
func (m *NetworkMetrics) SessionClosed() {
	m.activeSessions.Dec()
}

// MessageIn учитывает входящее сообщение
func (m *NetworkMetrics) MessageIn(msgType string, size int) {
	m.messagesIn.WithLabelValues(msgType).Inc()
	m.bytesIn.Add(float64(size))
}

// MessageOut учитывает исходящее сообщение
func (m *NetworkMetrics) MessageOut(msgType string, size int) {
	m.messagesOut.WithLabelValues(msgType).Inc()
	m.bytesOut.Add(float64(size))
}

// ProtocolError учитывает ошибку протокола
func (m *NetworkMetrics) ProtocolError() {
	m.protocolErrors.Inc()
}

// StreamStarted учитывает запуск потока телеметрии
func (m *NetworkMetrics) StreamStarted() {
	m.activeStreams.Inc()
}

// StreamStopped учитывает остановку потока телеметрии
func (m *NetworkMetrics) StreamStopped() {
	m.activeStreams.Dec()
}
