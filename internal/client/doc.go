// Package client implements the host side of a fluxusb link.
//
// A Client reads the device's handshake offer, acknowledges it and then
// issues control, ping and channel requests over any Conn: a TCP connection
// to the gnet bridge, a WebSocket to the WS bridge, or a raw tty. Requests
// block until the matching reply arrives or the context ends.
//
//	c := client.New(conn)
//	offer, err := c.Hello(ctx)
//	status, err := c.Open(ctx, 0, "robot")
//	reply, err := c.Request(ctx, 0, map[string]any{"cmd": "list"})
//
// Filler frames are dropped. When the device resets, the pending call fails
// with ErrDeviceReset and Hello must run again.
//
// A Client is not safe for concurrent use.
package client
