package link

import (
	"fmt"

	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"go.uber.org/zap"
)

// dispatch routes one decoded frame. Panics from handlers become errors.
func (c *Connection) dispatch(f protocol.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("link: panic while dispatching %s: %v", f, r)
		}
	}()

	logging.LogFrame(c.name, string(Inbound), f.Channel, f.Marker, f.Payload)
	if c.hook != nil {
		c.hook(Inbound, f)
	}
	c.metrics.FrameReceived(classOf(f.Channel))

	switch {
	case protocol.IsFiller(f):
		return nil
	case f.Channel == protocol.ChannelPing:
		return c.pong(f)
	case c.state != StateHandshaked:
		return c.handshake(f)
	case f.Channel == protocol.ChannelHandshakeResend:
		// The client believes it is unauthenticated.
		return c.Reset(CauseResend)
	case f.Channel == protocol.ChannelControlRequest:
		return c.control(f)
	case f.IsApplication():
		return c.route(f)
	default:
		return protocol.NewProtocolError("dispatch", f, protocol.ErrUnexpectedChannel)
	}
}

// route delivers an application frame to the handler bound to its channel.
// Frames for empty slots are dropped after the same framing checks.
func (c *Connection) route(f protocol.Frame) error {
	index := int(f.Channel)
	h, bound := c.channels.Get(index)

	var err error
	switch f.Marker {
	case protocol.MarkerClientObject:
		rec, derr := protocol.DecodeRecord(f.Payload)
		if derr != nil {
			return protocol.NewProtocolError("route", f, derr)
		}
		if bound {
			err = h.OnPayload(rec)
		}
	case protocol.MarkerClientBinary:
		if aerr := c.SendBinaryAck(f.Channel); aerr != nil {
			return aerr
		}
		if bound {
			err = h.OnBinary(f.Payload)
		}
	case protocol.MarkerClientBinaryAck:
		if bound {
			err = h.OnBinaryAck()
		}
	default:
		return protocol.NewProtocolError("route", f, protocol.ErrUnexpectedMarker)
	}

	if !bound {
		logging.Debug("Dropped frame for closed channel",
			zap.String("link", c.name),
			zap.Int("channel", index),
			zap.String("marker", protocol.MarkerName(f.Marker)),
			zap.Int("length", f.Len()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("link: channel %d handler: %w", index, err)
	}
	return nil
}
