package link

import "github.com/muurk/fluxusb/internal/protocol"

// pong answers a liveness probe with the same marker and the raw status
// snapshot. The request payload is never decoded.
func (c *Connection) pong(f protocol.Frame) error {
	c.metrics.Ping()
	return c.Send(protocol.ChannelPong, f.Marker, c.info.Status())
}
