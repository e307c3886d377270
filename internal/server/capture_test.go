package server

import (
	"encoding/hex"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/muurk/fluxusb/internal/link"
	"github.com/muurk/fluxusb/internal/protocol"
)

func readCapture(t *testing.T, path string) []FrameRecord {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()
	records, err := ReadCapture(f)
	if err != nil {
		t.Fatalf("ReadCapture() error = %v", err)
	}
	return records
}

func TestCapture_Hook(t *testing.T) {
	c, err := NewCapture(t.TempDir())
	if err != nil {
		t.Fatalf("NewCapture() error = %v", err)
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	obj, _ := protocol.Marshal(map[string]any{"cmd": "get", "key": "nozzle"})
	hook := c.Hook("tcp:127.0.0.1:5000")
	hook(link.Inbound, protocol.Frame{Channel: 2, Marker: protocol.MarkerClientObject, Payload: obj})
	hook(link.Outbound, protocol.Frame{Channel: protocol.ChannelPong, Marker: 0x42, Payload: []byte("ST_IDLE 7\x00")})

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	hook(link.Inbound, protocol.Frame{Channel: 1, Marker: protocol.MarkerClientBinary})

	records := readCapture(t, c.Path())
	if len(records) != 2 {
		t.Fatalf("captured %d records, want 2", len(records))
	}

	first := records[0]
	if first.Seq != 1 || first.Direction != "rx" || first.Link != "tcp:127.0.0.1:5000" {
		t.Errorf("first record = %+v", first)
	}
	if !first.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, fixed)
	}
	if first.Object["key"] != "nozzle" {
		t.Errorf("decoded object = %v", first.Object)
	}

	second := records[1]
	if second.Seq != 2 || second.Direction != "tx" || second.Channel != protocol.ChannelPong {
		t.Errorf("second record = %+v", second)
	}
	if second.PayloadAscii != "ST_IDLE 7." {
		t.Errorf("payload ascii = %q", second.PayloadAscii)
	}
	if second.Object != nil {
		t.Errorf("raw frame decoded as object: %v", second.Object)
	}
}

func TestToASCII(t *testing.T) {
	if got := toASCII([]byte{'o', 'k', 0x00, 0x7f, ' '}); got != "ok.. " {
		t.Errorf("toASCII() = %q", got)
	}
}

func TestReadCapture_BadLine(t *testing.T) {
	in := `{"seq":1,"channel":250,"payload_hex":"","payload_length":0}

not json
`
	records, err := ReadCapture(strings.NewReader(in))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("ReadCapture() error = %v, want line 3", err)
	}
	if len(records) != 1 {
		t.Errorf("kept %d records before the bad line, want 1", len(records))
	}
}

func TestAnalyzeCapture(t *testing.T) {
	c, err := NewCapture(t.TempDir())
	if err != nil {
		t.Fatalf("NewCapture() error = %v", err)
	}
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := t0
	c.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	offer, _ := protocol.Marshal(map[string]any{"session": 7})
	usb := c.Hook("usb:/dev/ttyGS0")
	tcp := c.Hook("tcp:127.0.0.1:5000")
	usb(link.Outbound, protocol.Frame{Channel: protocol.ChannelHandshakeOffer, Marker: protocol.MarkerDeviceObject, Payload: offer})
	usb(link.Inbound, protocol.Frame{Channel: 0, Marker: protocol.MarkerClientBinary, Payload: []byte("G28\n")})
	usb(link.Outbound, protocol.Frame{Channel: 0, Marker: protocol.MarkerDeviceBinaryAck})
	tcp(link.Inbound, protocol.Frame{Channel: protocol.ChannelPing, Marker: 0x33})
	tcp(link.Inbound, protocol.Frame{Channel: 3, Marker: protocol.MarkerDeviceBinary, Payload: []byte{1}})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	records := readCapture(t, c.Path())
	records[1].PayloadHex = hex.EncodeToString([]byte("G29\n"))[:6]

	stats := AnalyzeCapture(records)
	if stats.Frames != 5 || stats.Offers != 1 {
		t.Errorf("frames = %d offers = %d, want 5 and 1", stats.Frames, stats.Offers)
	}
	if len(stats.Links) != 2 || stats.Links[0] != "tcp:127.0.0.1:5000" {
		t.Errorf("links = %v", stats.Links)
	}
	if stats.Channels["app(0)"] != 2 || stats.Channels["ping"] != 1 {
		t.Errorf("channels = %v", stats.Channels)
	}
	if !stats.First.Equal(t0.Add(time.Second)) || !stats.Last.Equal(t0.Add(5*time.Second)) {
		t.Errorf("span = %v .. %v", stats.First, stats.Last)
	}
	if len(stats.Failures) != 1 || stats.Failures[0].Seq != 2 {
		t.Errorf("failures = %+v, want the truncated payload at seq 2", stats.Failures)
	}
	if len(stats.Anomalies) != 1 || stats.Anomalies[0].Seq != 5 {
		t.Errorf("anomalies = %+v, want the device marker at seq 5", stats.Anomalies)
	}
}
