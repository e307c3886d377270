package link

import (
	"errors"
	"fmt"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/protocol"
)

const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// controlRequest is an open or close request on channel 0xf0.
type controlRequest struct {
	Channel any    `cbor:"channel"`
	Action  string `cbor:"action"`
	Type    string `cbor:"type"`
}

// control answers a channel open or close request on channel 0xf1.
func (c *Connection) control(f protocol.Frame) error {
	if f.Marker != protocol.MarkerClientObject {
		return protocol.NewProtocolError("control", f, protocol.ErrUnexpectedMarker)
	}
	var req controlRequest
	if err := protocol.Unmarshal(f.Payload, &req); err != nil {
		return protocol.NewProtocolError("control", f, err)
	}
	if req.Channel == nil {
		return protocol.NewProtocolError("control", f,
			fmt.Errorf("%w: missing channel", protocol.ErrBadPayload))
	}

	status := c.apply(req.Channel, req.Action, req.Type)
	c.metrics.ControlRequest(req.Action, string(status))
	return c.SendObject(protocol.ChannelControlResponse, map[string]any{
		"channel": req.Channel,
		"action":  req.Action,
		"status":  string(status),
	})
}

// apply runs one request against the table. Targets that are not an
// integer in [0, MaxChannels) get StatusError.
func (c *Connection) apply(target any, action, kindName string) channel.Status {
	index, ok := protocol.AsInt(target)
	if !ok || index < 0 || index >= channel.MaxChannels {
		return channel.StatusError
	}
	defer c.syncGauge()

	switch action {
	case ActionOpen:
		kind, err := channel.ParseKind(kindName)
		if err != nil {
			return channel.StatusBadParams
		}
		return c.channels.Open(int(index), kind, &sender{c: c, index: int(index), epoch: c.epoch})
	case ActionClose:
		return c.channels.Close(int(index))
	default:
		return channel.StatusError
	}
}

// sender binds a handler to its own channel for one session.
type sender struct {
	c     *Connection
	index int
	epoch uint64
}

func (s *sender) Index() int { return s.index }

func (s *sender) SendObject(v any) error {
	if s.c.epoch != s.epoch {
		return ErrStaleChannel
	}
	return s.c.SendObject(byte(s.index), v)
}

func (s *sender) SendBinary(chunk []byte) error {
	if s.c.epoch != s.epoch {
		return ErrStaleChannel
	}
	return s.c.SendBinary(byte(s.index), chunk)
}

// Release closes the channel through the table so the slot becomes reusable.
func (s *sender) Release() error {
	if s.c.epoch != s.epoch {
		return ErrStaleChannel
	}
	status := s.c.channels.Close(s.index)
	s.c.syncGauge()
	if status != channel.StatusOK {
		return errors.New("link: release channel: " + string(status))
	}
	return nil
}
