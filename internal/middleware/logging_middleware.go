package middleware

import (
	"time"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger пишет одну строку на завершённый HTTP-запрос и кладёт
// trace-ID в контекст gin. Служебные маршруты (/health, /metrics)
// не логируются, чтобы не засорять журнал опросами мониторинга.
type RequestLogger struct {
	// Запросы дольше порога логируются как Warn
	SlowThreshold time.Duration

	quiet map[string]struct{}
}

func NewRequestLogger() *RequestLogger {
	return &RequestLogger{
		SlowThreshold: 500 * time.Millisecond,
		quiet: map[string]struct{}{
			"/health":  {},
			"/metrics": {},
		},
	}
}

// Handler возвращает middleware для router.Use().
func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := rl.traceID(c)
		c.Set("trace_id", traceID)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if _, skip := rl.quiet[path]; skip {
			return
		}

		status := c.Writer.Status()
		line := "[HTTP] %s %s → %d за %s ip=%s trace=%s"
		args := []interface{}{c.Request.Method, path, status, elapsed, c.ClientIP(), traceID}

		// Запрос с идентификатором судна логируем вместе с ним
		if vid := c.Param("id"); vid != "" {
			line = "[HTTP] %s %s → %d за %s vessel=%s ip=%s trace=%s"
			args = []interface{}{c.Request.Method, path, status, elapsed, vid, c.ClientIP(), traceID}
		}

		switch {
		case status >= 500:
			logging.Error(line, args...)
		case elapsed > rl.SlowThreshold:
			logging.Warn(line, args...)
		default:
			logging.Info(line, args...)
		}
	}
}

// traceID берёт идентификатор из активного OpenTelemetry-спана,
// а без трассировки генерирует собственный.
func (rl *RequestLogger) traceID(c *gin.Context) string {
	span := trace.SpanFromContext(c.Request.Context())
	if sc := span.SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}
