package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/flight-telemetry/internal/vec"
)

func TestPayloadRoundTrip(t *testing.T) {
	ms := NewMessageSerializer()

	original := FlightData{
		VesselID: "kerbal-1",
		Position: vec.Vec3{X: 700000, Y: 0, Z: 0},
		Velocity: vec.Vec3{X: 0, Y: 2246.1, Z: 0},
		Prograde: vec.Vec3{X: 0, Y: 1, Z: 0},
		Speed:    2246.1,
		Altitude: 100000,
		State:    "orbit",
	}

	data, err := ms.MarshalPayload(original)
	require.NoError(t, err)

	var decoded FlightData
	require.NoError(t, ms.UnmarshalPayload(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestPayloadRoundTripEscapeTrajectory(t *testing.T) {
	ms := NewMessageSerializer()

	original := FlightData{
		VesselID:  "escape-1",
		Velocity:  vec.Vec3{X: 3500},
		Speed:     3500,
		Altitude:  100000,
		Apoapsis:  -1,
		Periapsis: 95000,
		Escape:    true,
		State:     "orbit",
	}

	data, err := ms.MarshalPayload(original)
	require.NoError(t, err)

	var decoded FlightData
	require.NoError(t, ms.UnmarshalPayload(data, &decoded))
	assert.True(t, decoded.Escape)
	assert.Equal(t, original, decoded)
}

func TestFrameRoundTrip(t *testing.T) {
	ms := NewMessageSerializer()

	msg, err := ms.BuildMessage(MsgFlightQuery, FlightQuery{VesselID: "abc"})
	require.NoError(t, err)
	msg.Sequence = 42
	msg.Flags = FlagReliable | FlagOrdered

	frame := EncodeFrame(msg)
	decoded, err := DecodeFrame(frame)
	require.NoError(t, err)

	assert.Equal(t, MsgFlightQuery, decoded.Type)
	assert.Equal(t, uint32(42), decoded.Sequence)
	assert.Equal(t, msg.Flags, decoded.Flags)
	assert.Equal(t, msg.Timestamp, decoded.Timestamp)
	assert.Equal(t, msg.Payload, decoded.Payload)
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCompressRoundTrip(t *testing.T) {
	// Нагрузка должна превышать порог сжатия и быть сжимаемой
	payload := []byte(strings.Repeat("telemetry frame ", 200))
	msg := NewMessage(MsgStreamData, payload)

	MaybeCompress(msg)
	assert.Equal(t, CompressionZstd, msg.Compression)
	assert.Less(t, len(msg.Payload), len(payload))

	require.NoError(t, Decompress(msg))
	assert.Equal(t, CompressionNone, msg.Compression)
	assert.Equal(t, payload, msg.Payload)
}

func TestCompressSkipsSmallPayloads(t *testing.T) {
	payload := []byte("small")
	msg := NewMessage(MsgPing, payload)

	MaybeCompress(msg)
	assert.Equal(t, CompressionNone, msg.Compression)
	assert.Equal(t, payload, msg.Payload)
}

func TestMsgTypeString(t *testing.T) {
	assert.Equal(t, "FlightQuery", MsgFlightQuery.String())
	assert.Equal(t, "Unknown", MsgType(9999).String())
}
