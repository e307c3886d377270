package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"go.uber.org/zap"
)

var (
	ErrDeviceReset    = errors.New("client: device reset the session")
	ErrNotHandshaked  = errors.New("client: no session")
	ErrSessionChanged = errors.New("client: handshake completed for another session")
	ErrRejected       = errors.New("client: request rejected")
)

// maxPending bounds frames held for later callers.
const maxPending = 256

// Conn is the byte stream to the device.
type Conn interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
}

// Option configures a Client.
type Option func(*Client)

// WithProfile sets the client record sent in the handshake ack.
func WithProfile(profile map[string]any) Option {
	return func(c *Client) {
		c.profile = profile
	}
}

// WithProtocolLevel sets the protocol level requested in the handshake ack.
func WithProtocolLevel(level int) Option {
	return func(c *Client) {
		c.level = level
	}
}

// WithBufferSize sets the receive buffer capacity.
func WithBufferSize(n int) Option {
	return func(c *Client) {
		c.bufferSize = n
	}
}

// Client is the host endpoint of one link.
type Client struct {
	conn       Conn
	dec        *protocol.Decoder
	bufferSize int
	readBuf    []byte
	unread     []byte
	pending    []protocol.Frame

	profile map[string]any
	level   int

	handshaked bool
	session    uint16
	negotiated int
	offer      protocol.Record
}

// New creates a client over conn.
func New(conn Conn, opts ...Option) *Client {
	c := &Client{
		conn:       conn,
		bufferSize: protocol.MaxFrameSize + 1,
		profile:    map[string]any{"name": "fluxusbctl"},
		level:      1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dec = protocol.NewDecoder(c.bufferSize)
	c.readBuf = make([]byte, 4096)
	return c
}

// Session returns the current session identifier.
func (c *Client) Session() uint16 { return c.session }

// Handshaked reports whether Hello completed and no reset was seen since.
func (c *Client) Handshaked() bool { return c.handshaked }

// ProtocolLevel returns the level the device confirmed.
func (c *Client) ProtocolLevel() int { return c.negotiated }

// Offer returns the device record from the last handshake offer.
func (c *Client) Offer() protocol.Record { return c.offer }

// Hello waits for a handshake offer, accepts it and waits for the device to
// confirm. It returns the device record from the offer.
func (c *Client) Hello(ctx context.Context) (protocol.Record, error) {
	c.handshaked = false
	for {
		f, err := c.next(ctx, func(f protocol.Frame) bool {
			return f.Channel == protocol.ChannelHandshakeOffer
		})
		if err != nil && !errors.Is(err, ErrDeviceReset) {
			return nil, err
		}
		if err != nil {
			continue
		}
		offer, err := protocol.DecodeRecord(f.Payload)
		if err != nil {
			return nil, err
		}
		session, ok := offer.Int("session")
		if !ok {
			return nil, fmt.Errorf("%w: offer without session", protocol.ErrBadPayload)
		}

		// A newer offer may already be queued behind this one.
		if c.hasPending(protocol.ChannelHandshakeOffer) {
			continue
		}

		ack := map[string]any{"session": uint16(session), "client": c.profile}
		if c.level > 0 {
			ack["protocol_level"] = c.level
		}
		if err := c.sendObject(protocol.ChannelHandshakeAck, ack); err != nil {
			return nil, err
		}

		done, err := c.next(ctx, func(f protocol.Frame) bool {
			return f.Channel == protocol.ChannelHandshakeComplete || f.Channel == protocol.ChannelHandshakeOffer
		})
		if err != nil && !errors.Is(err, ErrDeviceReset) {
			return nil, err
		}
		if err != nil || done.Channel == protocol.ChannelHandshakeOffer {
			// The device moved on; answer the newest offer.
			if err == nil {
				c.pending = append([]protocol.Frame{done}, c.pending...)
			}
			continue
		}

		reply, err := protocol.DecodeRecord(done.Payload)
		if err != nil {
			return nil, err
		}
		if got, _ := reply.Int("session"); got != session {
			return nil, fmt.Errorf("%w: %d != %d", ErrSessionChanged, got, session)
		}
		level, _ := reply.Int("protocol_level")

		c.session = uint16(session)
		c.negotiated = int(level)
		c.offer = offer
		c.handshaked = true
		logging.Info("Handshake complete",
			zap.Uint16("session", c.session),
			zap.Int("protocol_level", c.negotiated),
		)
		return offer, nil
	}
}

// RequestResend asks the device for a new offer. After a handshake this
// makes the device reset.
func (c *Client) RequestResend() error {
	c.handshaked = false
	return c.send(protocol.ChannelHandshakeResend, protocol.MarkerClientObject, nil)
}

// Ping sends a liveness probe and returns the raw status snapshot.
func (c *Client) Ping(ctx context.Context, marker byte) ([]byte, time.Duration, error) {
	start := time.Now()
	if err := c.send(protocol.ChannelPing, marker, nil); err != nil {
		return nil, 0, err
	}
	f, err := c.next(ctx, func(f protocol.Frame) bool {
		return f.Channel == protocol.ChannelPong && f.Marker == marker
	})
	if err != nil {
		return nil, 0, err
	}
	return f.Payload, time.Since(start), nil
}

// Open asks the device to open channel ch with the given kind and returns the
// status string.
func (c *Client) Open(ctx context.Context, ch int, kind string) (string, error) {
	req := map[string]any{"channel": ch, "action": "open"}
	if kind != "" {
		req["type"] = kind
	}
	return c.control(ctx, ch, req)
}

// CloseChannel asks the device to close channel ch.
func (c *Client) CloseChannel(ctx context.Context, ch int) (string, error) {
	return c.control(ctx, ch, map[string]any{"channel": ch, "action": "close"})
}

func (c *Client) control(ctx context.Context, ch int, req map[string]any) (string, error) {
	if !c.handshaked {
		return "", ErrNotHandshaked
	}
	if err := c.sendObject(protocol.ChannelControlRequest, req); err != nil {
		return "", err
	}
	f, err := c.next(ctx, func(f protocol.Frame) bool {
		return f.Channel == protocol.ChannelControlResponse
	})
	if err != nil {
		return "", err
	}
	rec, err := protocol.DecodeRecord(f.Payload)
	if err != nil {
		return "", err
	}
	if got, _ := rec.Int("channel"); got != int64(ch) {
		return "", fmt.Errorf("client: control reply for channel %d, want %d", got, ch)
	}
	status, _ := rec.String("status")
	return status, nil
}

// Request sends v on application channel ch and returns the next structured
// reply on that channel.
func (c *Client) Request(ctx context.Context, ch byte, v any) (protocol.Record, error) {
	if !c.handshaked {
		return nil, ErrNotHandshaked
	}
	if err := c.sendObject(ch, v); err != nil {
		return nil, err
	}
	return c.Reply(ctx, ch)
}

// Reply waits for the next structured frame on ch.
func (c *Client) Reply(ctx context.Context, ch byte) (protocol.Record, error) {
	f, err := c.next(ctx, func(f protocol.Frame) bool {
		return f.Channel == ch && f.Marker == protocol.MarkerDeviceObject
	})
	if err != nil {
		return nil, err
	}
	return protocol.DecodeRecord(f.Payload)
}

// RejectedError is an error reply from a channel handler.
type RejectedError struct {
	Codes []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrRejected, strings.Join(e.Codes, " "))
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Has reports whether the reply carried code.
func (e *RejectedError) Has(code string) bool { return slices.Contains(e.Codes, code) }

// Check turns an error reply into a *RejectedError.
func Check(rec protocol.Record) error {
	if status, _ := rec.String("status"); status == "ok" {
		return nil
	}
	rejected := &RejectedError{}
	if list, ok := rec["error"].([]any); ok {
		for _, c := range list {
			if s, ok := c.(string); ok {
				rejected.Codes = append(rejected.Codes, s)
			}
		}
	}
	return rejected
}

// Upload streams data to channel ch, one chunk in flight. progress, if set,
// is called after every acknowledged chunk.
func (c *Client) Upload(ctx context.Context, ch byte, data []byte, progress func(sent, total int)) error {
	if !c.handshaked {
		return ErrNotHandshaked
	}
	for sent := 0; sent < len(data); {
		n := len(data) - sent
		if n > protocol.ChunkSize {
			n = protocol.ChunkSize
		}
		if err := c.send(ch, protocol.MarkerClientBinary, data[sent:sent+n]); err != nil {
			return err
		}
		if _, err := c.next(ctx, func(f protocol.Frame) bool {
			return f.Channel == ch && f.Marker == protocol.MarkerDeviceBinaryAck
		}); err != nil {
			return err
		}
		sent += n
		if progress != nil {
			progress(sent, len(data))
		}
	}
	return nil
}

// Download receives size bytes of binary chunks from channel ch into w,
// acknowledging each chunk.
func (c *Client) Download(ctx context.Context, ch byte, size int64, w io.Writer, progress func(received, total int64)) error {
	if !c.handshaked {
		return ErrNotHandshaked
	}
	var received int64
	for received < size {
		f, err := c.next(ctx, func(f protocol.Frame) bool {
			return f.Channel == ch && f.Marker == protocol.MarkerDeviceBinary
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
		received += int64(len(f.Payload))
		if err := c.send(ch, protocol.MarkerClientBinaryAck, nil); err != nil {
			return err
		}
		if progress != nil {
			progress(received, size)
		}
	}
	return nil
}

func (c *Client) sendObject(ch byte, v any) error {
	payload, err := protocol.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(ch, protocol.MarkerClientObject, payload)
}

func (c *Client) send(ch, marker byte, payload []byte) error {
	frame, err := protocol.Encode(ch, marker, payload)
	if err != nil {
		return err
	}
	logging.LogFrame("client", "tx", ch, marker, payload)
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

func (c *Client) hasPending(ch byte) bool {
	for _, f := range c.pending {
		if f.Channel == ch {
			return true
		}
	}
	return false
}

// next returns the first frame satisfying match, reading from the link as
// needed. Frames that do not match are kept for later calls.
func (c *Client) next(ctx context.Context, match func(protocol.Frame) bool) (protocol.Frame, error) {
	for i, f := range c.pending {
		if match(f) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f, nil
		}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer func() {
		stop()
		_ = c.conn.SetReadDeadline(time.Time{})
	}()

	for {
		if err := ctx.Err(); err != nil {
			return protocol.Frame{}, err
		}
		f, ok, err := c.decode()
		if err != nil {
			return protocol.Frame{}, err
		}
		if ok {
			if match(f) {
				return f, nil
			}
			c.hold(f)
			continue
		}

		if len(c.unread) > 0 {
			k, err := c.dec.Write(c.unread)
			if err != nil {
				return protocol.Frame{}, err
			}
			c.unread = c.unread[k:]
			continue
		}

		n, err := c.conn.Read(c.readBuf)
		c.unread = c.readBuf[:n]
		if err != nil && n == 0 {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, os.ErrDeadlineExceeded) {
				return protocol.Frame{}, ctxErr
			}
			return protocol.Frame{}, fmt.Errorf("client: read: %w", err)
		}
	}
}

// decode extracts one frame, dropping fillers. A framing error after the
// handshake means the device reset; decoding continues leniently so the new
// offer is not lost.
func (c *Client) decode() (protocol.Frame, bool, error) {
	for {
		mode := protocol.ModeHandshake
		if c.handshaked {
			mode = protocol.ModeStrict
		}
		f, ok, err := c.dec.Next(mode)
		if err != nil {
			c.handshaked = false
			c.pending = c.pending[:0]
			logging.Warn("Device reset detected", zap.Uint16("session", c.session), zap.Error(err))
			return protocol.Frame{}, false, ErrDeviceReset
		}
		if !ok {
			return protocol.Frame{}, false, nil
		}
		logging.LogFrame("client", "rx", f.Channel, f.Marker, f.Payload)
		if protocol.IsFiller(f) {
			continue
		}
		return f, true, nil
	}
}

func (c *Client) hold(f protocol.Frame) {
	if len(c.pending) >= maxPending {
		c.pending = c.pending[1:]
	}
	c.pending = append(c.pending, f)
}
