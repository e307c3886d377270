package server

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/muurk/fluxusb/internal/link"
	"github.com/muurk/fluxusb/internal/protocol"
)

// maxCaptureLine bounds one JSONL record. The hex and ASCII renderings take
// three bytes per payload byte.
const maxCaptureLine = 4 * protocol.MaxFrameSize

// Finding is a problem found in one captured frame.
type Finding struct {
	Seq     uint64 `json:"seq"`
	Link    string `json:"link"`
	Message string `json:"message"`
}

// CaptureStats summarizes a capture file.
type CaptureStats struct {
	Frames    int            `json:"frames"`
	Bytes     int            `json:"bytes"`
	Links     []string       `json:"links"`
	Channels  map[string]int `json:"channels"`
	Markers   map[string]int `json:"markers"`
	Offers    int            `json:"offers"`
	First     time.Time      `json:"first"`
	Last      time.Time      `json:"last"`
	Failures  []Finding      `json:"failures,omitempty"`
	Anomalies []Finding      `json:"anomalies,omitempty"`
}

// ReadCapture parses a JSONL capture stream.
func ReadCapture(r io.Reader) ([]FrameRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxCaptureLine)

	var records []FrameRecord
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec FrameRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return records, fmt.Errorf("capture line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("capture line %d: %w", line+1, err)
	}
	return records, nil
}

// AnalyzeCapture replays every record through the frame codec and reports
// frames that do not survive a strict decode, plus markers that do not fit
// the direction they travelled in.
func AnalyzeCapture(records []FrameRecord) CaptureStats {
	stats := CaptureStats{
		Channels: make(map[string]int),
		Markers:  make(map[string]int),
	}
	links := make(map[string]bool)

	for _, rec := range records {
		stats.Frames++
		if stats.First.IsZero() || rec.Timestamp.Before(stats.First) {
			stats.First = rec.Timestamp
		}
		if rec.Timestamp.After(stats.Last) {
			stats.Last = rec.Timestamp
		}
		links[rec.Link] = true
		stats.Channels[protocol.ChannelName(rec.Channel)]++
		stats.Markers[protocol.MarkerName(rec.Marker)]++
		if rec.Direction == string(link.Outbound) && rec.Channel == protocol.ChannelHandshakeOffer {
			stats.Offers++
		}

		payload, err := replay(rec)
		if err != nil {
			stats.Failures = append(stats.Failures, Finding{rec.Seq, rec.Link, err.Error()})
			continue
		}
		stats.Bytes += len(payload) + protocol.FrameOverhead

		if msg := checkMarker(rec); msg != "" {
			stats.Anomalies = append(stats.Anomalies, Finding{rec.Seq, rec.Link, msg})
		}
	}

	for name := range links {
		stats.Links = append(stats.Links, name)
	}
	slices.Sort(stats.Links)
	return stats
}

// replay re-encodes the frame and decodes it strictly.
func replay(rec FrameRecord) ([]byte, error) {
	payload, err := hex.DecodeString(rec.PayloadHex)
	if err != nil {
		return nil, fmt.Errorf("payload hex: %w", err)
	}
	if len(payload) != rec.PayloadLen {
		return nil, fmt.Errorf("payload is %d bytes, record says %d", len(payload), rec.PayloadLen)
	}

	wire, err := protocol.Encode(rec.Channel, rec.Marker, payload)
	if err != nil {
		return nil, err
	}
	dec := protocol.NewDecoder(len(wire))
	if _, err := dec.Write(wire); err != nil {
		return nil, err
	}
	f, ok, err := dec.Next(protocol.ModeStrict)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("frame incomplete after replay")
	}
	if f.Channel != rec.Channel || f.Marker != rec.Marker || !bytes.Equal(f.Payload, payload) {
		return nil, fmt.Errorf("replay mismatch: got %s", f)
	}
	return payload, nil
}

// checkMarker flags frames whose marker belongs to the other side. Ping and
// pong carry an arbitrary echo marker and fillers are never interpreted.
func checkMarker(rec FrameRecord) string {
	switch rec.Channel {
	case protocol.ChannelPing, protocol.ChannelPong, protocol.ChannelFiller:
		return ""
	}
	var legal []byte
	switch link.Direction(rec.Direction) {
	case link.Inbound:
		legal = []byte{protocol.MarkerClientObject, protocol.MarkerClientBinary, protocol.MarkerClientBinaryAck}
	case link.Outbound:
		legal = []byte{protocol.MarkerDeviceObject, protocol.MarkerDeviceBinary, protocol.MarkerDeviceBinaryAck}
	default:
		return fmt.Sprintf("unknown direction %q", rec.Direction)
	}
	if !slices.Contains(legal, rec.Marker) {
		return fmt.Sprintf("%s frame on %s carries %s", rec.Direction, protocol.ChannelName(rec.Channel), protocol.MarkerName(rec.Marker))
	}
	return ""
}
