package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/flight-telemetry/internal/logging"
	"github.com/annel0/flight-telemetry/internal/protocol"
)

// loopbackPair создаёт пару TCP-каналов через локальный слушатель
func loopbackPair(t *testing.T) (clientCh, serverCh *TCPChannel) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	logger := logging.GetNetworkLogger()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	cfg := DefaultChannelConfig(ChannelTCP)
	clientCh = NewTCPChannel(cfg, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, clientCh.Connect(ctx, listener.Addr().String()))
	t.Cleanup(func() { _ = clientCh.Close() })

	select {
	case conn := <-accepted:
		serverCh = NewTCPChannelFromConn(conn, cfg, logger)
		t.Cleanup(func() { _ = serverCh.Close() })
	case <-time.After(3 * time.Second):
		t.Fatal("входящее соединение не принято за 3с")
	}
	return clientCh, serverCh
}

func TestTCPChannelRoundTrip(t *testing.T) {
	clientCh, serverCh := loopbackPair(t)

	ser := protocol.NewMessageSerializer()
	msg, err := ser.BuildMessage(protocol.MsgPing, protocol.PingRequest{ClientTime: 42})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, clientCh.Send(ctx, msg, &SendOptions{Flags: protocol.FlagReliable}))

	got, err := serverCh.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgPing, got.Type)

	var ping protocol.PingRequest
	require.NoError(t, ser.UnmarshalPayload(got.Payload, &ping))
	assert.Equal(t, int64(42), ping.ClientTime)
}

func TestTCPChannelCompressedFrame(t *testing.T) {
	clientCh, serverCh := loopbackPair(t)

	ser := protocol.NewMessageSerializer()

	// Большая нагрузка, чтобы сработал порог сжатия
	frames := make([]protocol.VesselInfo, 200)
	for i := range frames {
		frames[i] = protocol.VesselInfo{
			ID:    "vessel-000000000000",
			Name:  "Compression Probe",
			State: "orbit",
		}
	}
	msg, err := ser.BuildMessage(protocol.MsgVesselListResponse, protocol.VesselListResponse{Vessels: frames})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, clientCh.Send(ctx, msg, &SendOptions{Compress: true}))

	got, err := serverCh.Receive(ctx)
	require.NoError(t, err)

	var list protocol.VesselListResponse
	require.NoError(t, ser.UnmarshalPayload(got.Payload, &list))
	require.Len(t, list.Vessels, 200)
	assert.Equal(t, "Compression Probe", list.Vessels[0].Name)
}

func TestTCPChannelStats(t *testing.T) {
	clientCh, serverCh := loopbackPair(t)

	ser := protocol.NewMessageSerializer()
	msg, err := ser.BuildMessage(protocol.MsgPing, protocol.PingRequest{ClientTime: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	require.NoError(t, clientCh.Send(ctx, msg, nil))
	_, err = serverCh.Receive(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return clientCh.Stats().PacketsSent == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, clientCh.IsConnected())
}
