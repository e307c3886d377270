package link

import (
	"io"

	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
)

// Send encodes and writes one frame, followed by a filler frame when padding
// is enabled.
func (c *Connection) Send(ch, marker byte, payload []byte) error {
	if c.closed {
		return ErrClosed
	}
	frame, err := protocol.Encode(ch, marker, payload)
	if err != nil {
		return err
	}
	logging.LogFrame(c.name, string(Outbound), ch, marker, payload)
	if c.hook != nil {
		c.hook(Outbound, protocol.Frame{Channel: ch, Payload: payload, Marker: marker})
	}
	c.metrics.FrameSent(classOf(ch))
	if c.padding {
		frame = protocol.Pad(frame)
	}
	return c.write(frame)
}

// SendObject sends v as a structured payload from the device side.
func (c *Connection) SendObject(ch byte, v any) error {
	payload, err := protocol.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(ch, protocol.MarkerDeviceObject, payload)
}

// SendBinary sends one binary chunk. Callers keep at most one chunk per
// channel unacknowledged.
func (c *Connection) SendBinary(ch byte, chunk []byte) error {
	return c.Send(ch, protocol.MarkerDeviceBinary, chunk)
}

// SendBinaryAck acknowledges one received chunk.
func (c *Connection) SendBinaryAck(ch byte) error {
	return c.Send(ch, protocol.MarkerDeviceBinaryAck, nil)
}

// write loops until b is fully written.
func (c *Connection) write(b []byte) error {
	for len(b) > 0 {
		n, err := c.w.Write(b)
		if err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		if n == 0 {
			return &TransportError{Op: "write", Err: io.ErrShortWrite}
		}
		b = b[n:]
	}
	return nil
}

// classOf buckets a channel for metric labels.
func classOf(ch byte) string {
	switch {
	case ch <= protocol.MaxApplicationChannel:
		return "app"
	case ch == protocol.ChannelFiller:
		return "filler"
	case ch == protocol.ChannelControlRequest, ch == protocol.ChannelControlResponse:
		return "control"
	case ch == protocol.ChannelPing, ch == protocol.ChannelPong:
		return "ping"
	case ch >= protocol.ChannelHandshakeResend:
		return "handshake"
	default:
		return "other"
	}
}
