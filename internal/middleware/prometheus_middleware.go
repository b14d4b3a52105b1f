package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMiddleware собирает HTTP-метрики REST API телеметрии.
// Маршрут /metrics добавляется отдельно методом RegisterMetricsEndpoint.
//
// Метрики (namespace передаётся при создании):
// * http_requests_total{method,route,status} — counter
// * http_request_duration_seconds{method,route} — histogram
// * http_response_bytes{method,route} — histogram
// * http_requests_inflight — gauge
type PrometheusMiddleware struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	respSize *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewPrometheusMiddleware регистрирует метрики в дефолтном регистре.
func NewPrometheusMiddleware(namespace string) *PrometheusMiddleware {
	pm := &PrometheusMiddleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Число HTTP-запросов по маршруту и статусу.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность обработки HTTP-запросов.",
			// Снимки полёта отдаются из памяти, история — из хранилища
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		respSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_bytes",
			Help:      "Размер тела ответа: история и воспроизведение могут быть объёмными.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"method", "route"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_inflight",
			Help:      "Запросы, обрабатываемые в данный момент.",
		}),
	}

	prometheus.MustRegister(pm.requests, pm.duration, pm.respSize, pm.inflight)
	return pm
}

// Handler возвращает middleware для router.Use().
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pm.inflight.Inc()
		start := time.Now()

		c.Next()

		pm.inflight.Dec()

		// Шаблон маршрута, а не сырой путь: идентификаторы судов
		// не должны раздувать кардинальность меток
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		pm.requests.WithLabelValues(method, route, status).Inc()
		pm.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			pm.respSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}

// RegisterMetricsEndpoint добавляет GET /metrics в указанный router.
func (pm *PrometheusMiddleware) RegisterMetricsEndpoint(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
