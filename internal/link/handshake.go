package link

import (
	"fmt"

	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"go.uber.org/zap"
)

// handshakeAck is the client's acceptance of an offer.
type handshakeAck struct {
	Session       *uint16 `cbor:"session"`
	Client        any     `cbor:"client"`
	ProtocolLevel int     `cbor:"protocol_level"`
}

// sendOffer sends the handshake offer for the current session.
func (c *Connection) sendOffer() error {
	offer := c.info.Info()
	if offer == nil {
		offer = map[string]any{}
	}
	offer["session"] = c.session
	return c.SendObject(protocol.ChannelHandshakeOffer, offer)
}

// handshake handles a frame received before the session is established.
func (c *Connection) handshake(f protocol.Frame) error {
	switch f.Channel {
	case protocol.ChannelHandshakeAck:
		if f.Marker != protocol.MarkerClientObject {
			c.ignore(f, "handshake ack with wrong marker")
			return nil
		}
		return c.accept(f)
	case protocol.ChannelHandshakeResend:
		logging.Debug("Resending handshake offer",
			zap.String("link", c.name),
			zap.Uint16("session", c.session),
		)
		return c.sendOffer()
	default:
		c.ignore(f, "frame before handshake")
		return nil
	}
}

// accept completes the handshake if the ack names the current session.
func (c *Connection) accept(f protocol.Frame) error {
	var ack handshakeAck
	if err := protocol.Unmarshal(f.Payload, &ack); err != nil {
		return protocol.NewProtocolError("handshake", f, err)
	}
	if ack.Session == nil {
		return protocol.NewProtocolError("handshake", f,
			fmt.Errorf("%w: missing session", protocol.ErrBadPayload))
	}
	if *ack.Session != c.session {
		logging.Info("Ignoring handshake ack for stale session",
			zap.String("link", c.name),
			zap.Uint16("session", c.session),
			zap.Uint16("ack_session", *ack.Session),
		)
		return nil
	}

	reply := map[string]any{"session": c.session}
	level := 0
	if ack.ProtocolLevel >= 1 && c.paddingAllowed {
		level = 1
		reply["protocol_level"] = level
	}
	if err := c.SendObject(protocol.ChannelHandshakeComplete, reply); err != nil {
		return err
	}

	c.state = StateHandshaked
	c.clientProfile = ack.Client
	c.protocolLevel = level
	c.padding = level >= 1
	c.metrics.Handshake()

	logging.Info("Handshake complete",
		zap.String("link", c.name),
		zap.Uint16("session", c.session),
		zap.Int("protocol_level", level),
		zap.Bool("padding", c.padding),
	)
	return nil
}

func (c *Connection) ignore(f protocol.Frame, reason string) {
	logging.Debug("Ignoring frame",
		zap.String("link", c.name),
		zap.String("reason", reason),
		zap.String("channel", protocol.ChannelName(f.Channel)),
		zap.String("marker", protocol.MarkerName(f.Marker)),
		zap.Int("length", f.Len()),
		zap.Uint16("session", c.session),
	)
}
