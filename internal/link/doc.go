// Package link implements the device side of one framed USB link.
//
// A Connection owns the receive buffer, the handshake state, the session
// identifier and the channel table for a single physical link. Transports push
// raw bytes into Feed; every complete frame is decoded and dispatched
// synchronously, in arrival order, before Feed returns.
//
// # States
//
//	AwaitingHandshake --ack(session)--> Handshaked
//	        ^                               |
//	        +---------- Reset() ------------+
//
// Reset closes every channel, writes a 16-byte zero resync marker, picks a new
// session identifier and sends a fresh handshake offer on channel 0xff.
//
// # Errors
//
// Feed only returns transport errors (*TransportError). Framing violations
// (*protocol.ProtocolError), handler failures and handler panics are absorbed
// by resetting the session.
//
// # Concurrency
//
// A Connection is not safe for concurrent use. Each transport drives its
// connections from exactly one goroutine or event loop.
package link
