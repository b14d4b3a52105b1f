package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExporterReflectsBusStats(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), &Envelope{
			ID:        "ev",
			EventType: EventSystem,
			Source:    "test",
		}))
	}

	exporter := NewMetricsExporter(bus)
	go exporter.loop()
	defer exporter.Stop()

	// Экспортер опрашивает шину раз в секунду
	assert.Eventually(t, func() bool {
		return gatherCounter(t, "eventbus_messages_published_total") >= 3
	}, 3*time.Second, 100*time.Millisecond)
}

// gatherCounter читает значение счётчика из дефолтного регистра
func gatherCounter(t *testing.T, name string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
