package link

import (
	"math/rand"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/device"
	"github.com/muurk/fluxusb/internal/metrics"
	"github.com/muurk/fluxusb/internal/protocol"
)

// Direction tags frames passed to a FrameHook.
type Direction string

const (
	Inbound  Direction = "rx"
	Outbound Direction = "tx"
)

// FrameHook observes every decoded inbound frame and every outbound frame
// before padding. It must not call back into the Connection.
type FrameHook func(dir Direction, f protocol.Frame)

// Option configures a Connection.
type Option func(*Connection)

// WithName sets the link name used in logs.
func WithName(name string) Option {
	return func(c *Connection) {
		c.name = name
	}
}

// WithBufferSize sets the receive buffer capacity (default 1024).
func WithBufferSize(n int) Option {
	return func(c *Connection) {
		c.bufferSize = n
	}
}

// WithRand sets the session identifier source.
func WithRand(r *rand.Rand) Option {
	return func(c *Connection) {
		c.rng = r
	}
}

// WithInfoProvider sets the device info and status provider.
func WithInfoProvider(p device.Provider) Option {
	return func(c *Connection) {
		c.info = p
	}
}

// WithHandlerFactory sets the factory used to build channel handlers.
func WithHandlerFactory(f channel.Factory) Option {
	return func(c *Connection) {
		c.factory = f
	}
}

// WithMetrics sets the collectors the connection reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}

// WithPaddingAllowed controls whether padding may be negotiated (default true).
func WithPaddingAllowed(allowed bool) Option {
	return func(c *Connection) {
		c.paddingAllowed = allowed
	}
}

// WithOnError registers a callback for transport errors surfaced by Feed.
func WithOnError(fn func(error)) Option {
	return func(c *Connection) {
		c.onError = fn
	}
}

// WithFrameHook registers a frame observer.
func WithFrameHook(hook FrameHook) Option {
	return func(c *Connection) {
		c.hook = hook
	}
}
