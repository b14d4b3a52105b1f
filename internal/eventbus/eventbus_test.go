package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(16)

	var received int32
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventVesselState}}, func(ctx context.Context, ev *Envelope) {
		atomic.AddInt32(&received, 1)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{
		ID:        "ev-1",
		EventType: EventVesselState,
		Source:    "sim",
	}))

	// Несоответствующий фильтру тип не должен доставляться
	require.NoError(t, bus.Publish(context.Background(), &Envelope{
		ID:        "ev-2",
		EventType: EventSystem,
		Source:    "sim",
	}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) == 1
	}, time.Second, 10*time.Millisecond)

	stats := bus.Metrics()
	assert.Equal(t, uint64(2), stats.Published)
}

func TestMemoryBusSourceFilter(t *testing.T) {
	bus := NewMemoryBus(16)

	var received int32
	_, err := bus.Subscribe(context.Background(), Filter{Sources: []string{"network"}}, func(ctx context.Context, ev *Envelope) {
		atomic.AddInt32(&received, 1)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "a", EventType: EventSystem, Source: "sim"}))
	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "b", EventType: EventSystem, Source: "network"}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryBusClose(t *testing.T) {
	bus := NewMemoryBus(16)

	var received int32
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		atomic.AddInt32(&received, 1)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "before", EventType: EventSystem}))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Close())
	// Повторное закрытие безопасно
	require.NoError(t, bus.Close())

	// Публикация после закрытия отклоняется
	err = bus.Publish(context.Background(), &Envelope{ID: "after", EventType: EventSystem})
	assert.ErrorIs(t, err, ErrBusClosed)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(16)

	var received int32
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		atomic.AddInt32(&received, 1)
	})
	require.NoError(t, err)

	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), &Envelope{ID: "x", EventType: EventSystem}))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&received))
}
