// Package server runs link connections over the physical and bridged
// transports of the device.
//
// # Transports
//
//   - usb: a USB gadget serial tty (for example /dev/ttyGS0), opened
//     non-blocking, switched to raw mode and reopened after the host
//     disconnects
//   - tcp: a raw byte stream per TCP connection, served by gnet event loops
//   - websocket: binary WebSocket messages on /link, optionally over TLS
//
// Every transport creates one link.Connection per attached host and drives
// it from a single goroutine or event loop. Message and segment boundaries
// carry no meaning; the link decoder reassembles frames.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    Link:     cfg.Link,
//	    Provider: device.NewStatic(cfg.Device),
//	    Factory:  handlers.Factory(cfg.Handlers, store),
//	    Metrics:  metrics.New(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = srv.Run(ctx,
//	    server.NewUSB(srv, cfg.Link.USBDevice),
//	    server.NewTCP(srv, cfg.Link.TCPAddr, cfg.Link.Multicore),
//	)
//
// # Frame Capture
//
// With a Capture configured, every frame crossing any link is appended to
// a capture-<timestamp>.jsonl file, one JSON object per line, with hex and
// ASCII renderings of the payload and the decoded object for structured
// frames.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Run stops every transport:
//  1. Listeners stop accepting new hosts
//  2. Open links are closed, which closes their channel handlers
//  3. Run returns once every transport has stopped
package server
