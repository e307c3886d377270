package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/fluxusb/internal/link"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"go.uber.org/zap"
)

// FrameRecord is one captured frame, written as a JSON line.
type FrameRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	Seq          uint64          `json:"seq"`
	Link         string          `json:"link"`
	Direction    string          `json:"direction"`
	Channel      byte            `json:"channel"`
	ChannelName  string          `json:"channel_name"`
	Marker       byte            `json:"marker"`
	MarkerName   string          `json:"marker_name"`
	PayloadLen   int             `json:"payload_length"`
	PayloadHex   string          `json:"payload_hex"`
	PayloadAscii string          `json:"payload_ascii"`
	Object       protocol.Record `json:"object,omitempty"`
}

// Capture appends every frame crossing the link to a JSONL file.
type Capture struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	seq  uint64
	now  func() time.Time
	path string
}

// NewCapture creates dir if needed and opens a new capture file in it.
func NewCapture(dir string) (*Capture, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	logging.Info("Frame capture enabled", zap.String("path", path))
	return &Capture{f: f, enc: json.NewEncoder(f), now: time.Now, path: path}, nil
}

// Path returns the capture file path.
func (c *Capture) Path() string { return c.path }

// Hook returns a frame hook that tags records with the link name.
func (c *Capture) Hook(linkName string) link.FrameHook {
	return func(dir link.Direction, f protocol.Frame) {
		c.write(linkName, dir, f)
	}
}

func (c *Capture) write(linkName string, dir link.Direction, f protocol.Frame) {
	rec := FrameRecord{
		Link:         linkName,
		Direction:    string(dir),
		Channel:      f.Channel,
		ChannelName:  protocol.ChannelName(f.Channel),
		Marker:       f.Marker,
		MarkerName:   protocol.MarkerName(f.Marker),
		PayloadLen:   len(f.Payload),
		PayloadHex:   hex.EncodeToString(f.Payload),
		PayloadAscii: toASCII(f.Payload),
	}
	if f.Marker == protocol.MarkerDeviceObject || f.Marker == protocol.MarkerClientObject {
		if obj, err := protocol.DecodeRecord(f.Payload); err == nil {
			rec.Object = obj
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return
	}
	c.seq++
	rec.Seq = c.seq
	rec.Timestamp = c.now()
	if err := c.enc.Encode(rec); err != nil {
		logging.Error("Failed to write capture record",
			zap.String("path", c.path),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the capture file. Later frames are dropped.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

// toASCII converts bytes to ASCII string (non-printable chars become '.')
func toASCII(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
