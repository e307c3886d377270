package link

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/device"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/metrics"
	"github.com/muurk/fluxusb/internal/protocol"
	"go.uber.org/zap"
)

// State is the handshake state of a Connection.
type State int

const (
	StateAwaitingHandshake State = iota
	StateHandshaked
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateHandshaked:
		return "handshaked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reset causes, also used as metric labels.
const (
	CauseStart   = "start"
	CauseFraming = "framing"
	CauseHandler = "handler"
	CauseResend  = "resend"
	CauseManual  = "manual"
)

// Connection is the device endpoint of one physical link.
type Connection struct {
	name           string
	w              io.Writer
	dec            *protocol.Decoder
	bufferSize     int
	rng            *rand.Rand
	info           device.Provider
	factory        channel.Factory
	metrics        *metrics.Metrics
	paddingAllowed bool
	onError        func(error)
	hook           FrameHook

	channels  *channel.Table
	openGauge int

	state         State
	session       uint16
	padding       bool
	clientProfile any
	protocolLevel int

	started bool
	closed  bool
	epoch   uint64
}

// New creates a Connection that writes to w. Call Start once the link is up.
func New(w io.Writer, opts ...Option) *Connection {
	c := &Connection{
		name:           "link",
		w:              w,
		bufferSize:     protocol.DefaultBufferSize,
		paddingAllowed: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.info == nil {
		c.info = device.NewStatic(device.Identity{})
	}
	if c.factory == nil {
		c.factory = func(int, channel.Kind, channel.Sender) (channel.Handler, error) {
			return nil, fmt.Errorf("no handlers configured: %w", channel.ErrUnavailable)
		}
	}
	c.dec = protocol.NewDecoder(c.bufferSize)
	c.channels = channel.NewTable(c.factory)
	return c
}

// Name returns the link name.
func (c *Connection) Name() string { return c.name }

// State returns the handshake state.
func (c *Connection) State() State { return c.state }

// Handshaked reports whether a session is established.
func (c *Connection) Handshaked() bool { return c.state == StateHandshaked }

// Session returns the current session identifier.
func (c *Connection) Session() uint16 { return c.session }

// PaddingEnabled reports whether outbound frames are padded.
func (c *Connection) PaddingEnabled() bool { return c.padding }

// ClientProfile returns the client record from the last handshake ack.
func (c *Connection) ClientProfile() any { return c.clientProfile }

// ProtocolLevel returns the negotiated protocol level (0 or 1).
func (c *Connection) ProtocolLevel() int { return c.protocolLevel }

// Channels returns the indices of open application channels.
func (c *Connection) Channels() []int { return c.channels.Occupied() }

// Start performs the initial reset and sends the first handshake offer.
// A transport error is also reported to the OnError callback.
func (c *Connection) Start() error {
	if c.closed {
		return ErrClosed
	}
	logging.LogConnection(c.name, "link_open")
	err := c.Reset(CauseStart)
	if IsTransportError(err) {
		c.fail(err)
	}
	return err
}

// Reset returns the connection to AwaitingHandshake under a new session.
// The receive buffer is reused, not reallocated.
func (c *Connection) Reset(cause string) error {
	if c.closed {
		return ErrClosed
	}
	c.epoch++
	c.closeChannels()
	c.dec.Reset()
	c.state = StateAwaitingHandshake
	c.padding = false
	c.clientProfile = nil
	c.protocolLevel = 0

	old := c.session
	next := uint16(c.rng.Intn(1 << 16))
	if c.started && next == old {
		next++
	}
	c.session = next
	c.started = true

	logging.LogReset(c.name, cause, old, next)
	c.metrics.Reset(cause)

	if err := c.write(protocol.BuildResyncMarker()); err != nil {
		return err
	}
	return c.sendOffer()
}

// Close tears the connection down without wire traffic.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closeChannels()
	c.closed = true
	c.state = StateAwaitingHandshake
	logging.LogConnection(c.name, "link_closed")
	return nil
}

// Feed consumes raw link bytes. Complete frames are dispatched before Feed
// returns. Only transport errors are returned; everything else resets the
// session. Bytes following a reset in the same call are discarded.
func (c *Connection) Feed(p []byte) error {
	if c.closed {
		return ErrClosed
	}
	if !c.started {
		return ErrNotStarted
	}
	c.metrics.BytesReceived(len(p))

	epoch := c.epoch
	for len(p) > 0 {
		n, err := c.dec.Write(p)
		if err != nil {
			err = &protocol.ProtocolError{Op: "feed", Err: err}
		} else {
			p = p[n:]
			err = c.drain(epoch)
		}
		if err != nil {
			return c.absorb(err)
		}
		if c.epoch != epoch {
			return nil
		}
	}
	return nil
}

// drain dispatches every complete buffered frame.
func (c *Connection) drain(epoch uint64) error {
	for c.epoch == epoch {
		mode := protocol.ModeHandshake
		if c.state == StateHandshaked {
			mode = protocol.ModeStrict
		}
		before := c.dec.Discarded()
		f, ok, err := c.dec.Next(mode)
		c.metrics.NoiseDiscarded(c.dec.Discarded() - before)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := c.dispatch(f); err != nil {
			return err
		}
	}
	return nil
}

// absorb maps a dispatch error to its outcome: transport errors escalate,
// everything else resets the session.
func (c *Connection) absorb(err error) error {
	if IsTransportError(err) {
		c.fail(err)
		return err
	}

	cause := CauseHandler
	if protocol.IsProtocolError(err) {
		cause = CauseFraming
	}
	logging.Warn("Resetting session after error",
		zap.String("link", c.name),
		zap.Uint16("session", c.session),
		zap.String("cause", cause),
		zap.Error(err),
	)
	if rerr := c.Reset(cause); rerr != nil {
		if errors.Is(rerr, ErrClosed) {
			return nil
		}
		c.fail(rerr)
		return rerr
	}
	return nil
}

func (c *Connection) fail(err error) {
	logging.Error("Link transport failure",
		zap.String("link", c.name),
		zap.Error(err),
	)
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Connection) closeChannels() {
	c.channels.CloseAll()
	c.syncGauge()
}

// syncGauge reports the change in open channels since the last call.
func (c *Connection) syncGauge() {
	n := c.channels.Len()
	c.metrics.ChannelsOpened(n - c.openGauge)
	c.openGauge = n
}
