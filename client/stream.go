package client

import (
	"context"

	"github.com/annel0/flight-telemetry/internal/protocol"
)

// Stream представляет подписку на поток телеметрии.
// Кадры приходят в канал C; при отставании подписчика кадры дропаются.
type Stream struct {
	ID     string
	C      <-chan protocol.FlightData
	RateHz int

	client *Client
}

// StreamFlight подписывается на поток телеметрии судна.
// Пустой vesselID означает активное судно. rateHz == 0 использует
// частоту сервера по умолчанию.
func (c *Client) StreamFlight(ctx context.Context, vesselID string, rateHz int) (*Stream, error) {
	resp, err := c.request(ctx, protocol.MsgStreamSubscribe, protocol.StreamSubscribe{
		VesselID: vesselID,
		RateHz:   rateHz,
	}, protocol.MsgStreamAck)
	if err != nil {
		return nil, err
	}

	var ack protocol.StreamAck
	if err := c.ser.UnmarshalPayload(resp.Payload, &ack); err != nil {
		return nil, err
	}

	frames := make(chan protocol.FlightData, 32)
	c.streamsMu.Lock()
	c.streams[ack.StreamID] = frames
	c.streamsMu.Unlock()

	return &Stream{
		ID:     ack.StreamID,
		C:      frames,
		RateHz: ack.RateHz,
		client: c,
	}, nil
}

// Close отписывается от потока и закрывает канал кадров
func (s *Stream) Close(ctx context.Context) error {
	s.client.streamsMu.Lock()
	ch, exists := s.client.streams[s.ID]
	delete(s.client.streams, s.ID)
	s.client.streamsMu.Unlock()

	if exists {
		close(ch)
	}

	_, err := s.client.request(ctx, protocol.MsgStreamUnsubscribe, protocol.StreamUnsubscribe{
		StreamID: s.ID,
	}, protocol.MsgStreamAck)
	return err
}
