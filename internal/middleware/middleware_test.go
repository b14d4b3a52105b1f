package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestRequestLoggerSetsTraceID(t *testing.T) {
	r := newTestRouter()
	r.Use(NewRequestLogger().Handler())

	var traceID string
	r.GET("/vessels/:id/flight", func(c *gin.Context) {
		traceID = c.GetString("trace_id")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/vessels/v-1/flight", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, traceID, "trace_id должен попадать в контекст запроса")
}

func TestPrometheusMiddlewareLabelsByRoute(t *testing.T) {
	pm := NewPrometheusMiddleware("mw_test")

	r := newTestRouter()
	r.Use(pm.Handler())
	r.GET("/vessels/:id/flight", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// Два судна — один шаблон маршрута
	for _, path := range []string{"/vessels/v-1/flight", "/vessels/v-2/flight"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var checked bool
	for _, mf := range families {
		if mf.GetName() != "mw_test_http_requests_total" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1, "идентификаторы судов не должны плодить метки")
		m := mf.GetMetric()[0]
		assert.Equal(t, 2.0, m.GetCounter().GetValue())
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "route" {
				assert.Equal(t, "/vessels/:id/flight", lp.GetValue())
			}
		}
		checked = true
	}
	assert.True(t, checked, "метрика mw_test_http_requests_total не найдена")
}
