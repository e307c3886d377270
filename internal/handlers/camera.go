package handlers

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"github.com/muurk/fluxusb/internal/transfer"
	"go.uber.org/zap"
)

// The bridge is dialed and queried on the link's own goroutine, so both
// waits are bounded.
var (
	cameraDialTimeout = time.Second
	cameraIOTimeout   = 2 * time.Second
)

const maxSnapshotSize = 16 << 20

// snapshotRequest is written to the camera bridge socket. The bridge answers
// with a little-endian u32 length followed by the image bytes.
var snapshotRequest = []byte("SNAP")

var errSnapshotTooLarge = errors.New("camera: snapshot exceeds size limit")

// Camera relays snapshots from the local camera bridge.
type Camera struct {
	s      channel.Sender
	socket string
	conn   net.Conn
	up     *transfer.Upload
}

// NewCamera connects to the camera bridge. A missing bridge is an I/O error.
func NewCamera(s channel.Sender, socket string) (*Camera, error) {
	conn, err := net.DialTimeout("unix", socket, cameraDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	return &Camera{s: s, socket: socket, conn: conn}, nil
}

func (c *Camera) OnPayload(rec protocol.Record) error {
	cmd, _ := rec.String("cmd")
	switch cmd {
	case "snapshot":
		return c.snapshot()
	case "info":
		return ok(c.s, cmd, map[string]any{"socket": c.socket, "busy": c.up != nil})
	default:
		return fail(c.s, CodeNotSupport, cmd)
	}
}

func (c *Camera) snapshot() error {
	if c.up != nil {
		return fail(c.s, CodeBusy, "snapshot")
	}
	img, err := c.capture()
	if err != nil {
		logging.Warn("Camera bridge failed, releasing channel",
			zap.String("socket", c.socket),
			zap.Error(err),
		)
		if err := fail(c.s, CodeSubsystem, "snapshot"); err != nil {
			return err
		}
		return c.s.Release()
	}

	if err := ok(c.s, "snapshot", map[string]any{"size": len(img)}); err != nil {
		return err
	}
	c.up = transfer.NewUpload(bytes.NewReader(img), int64(len(img)), c.s.SendBinary, func(error) {
		c.up = nil
	})
	return c.up.Start()
}

// capture performs one request/response exchange with the bridge.
func (c *Camera) capture() ([]byte, error) {
	if err := c.conn.SetDeadline(time.Now().Add(cameraIOTimeout)); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(snapshotRequest); err != nil {
		return nil, err
	}
	var hdr [4]byte
	if _, err := io.ReadFull(c.conn, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(hdr[:])
	if size > maxSnapshotSize {
		return nil, fmt.Errorf("%w: %d bytes", errSnapshotTooLarge, size)
	}
	img := make([]byte, size)
	if _, err := io.ReadFull(c.conn, img); err != nil {
		return nil, err
	}
	return img, nil
}

func (c *Camera) OnBinary([]byte) error {
	return fail(c.s, CodeUnexpectedData)
}

func (c *Camera) OnBinaryAck() error {
	if c.up == nil {
		return transfer.ErrUnexpectedAck
	}
	return c.up.OnAck()
}

func (c *Camera) Close() error {
	c.up = nil
	return c.conn.Close()
}
