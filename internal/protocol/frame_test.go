package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		channel byte
		marker  byte
		payload []byte
		want    []byte
	}{
		{
			name:    "empty payload",
			channel: 0x03,
			marker:  MarkerClientBinaryAck,
			payload: nil,
			want:    []byte{0x04, 0x00, 0x03, 0x80},
		},
		{
			name:    "short payload",
			channel: ChannelPing,
			marker:  0x42,
			payload: []byte{0xde, 0xad},
			want:    []byte{0x06, 0x00, 0xfa, 0xde, 0xad, 0x42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.channel, tt.marker, tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := Encode(0, MarkerDeviceBinary, make([]byte, MaxFrameSize-FrameOverhead+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Encode() error = %v, want ErrPayloadTooLarge", err)
	}

	frame, err := Encode(0, MarkerDeviceBinary, make([]byte, MaxFrameSize-FrameOverhead))
	if err != nil {
		t.Fatalf("Encode() at max size error = %v", err)
	}
	if got := binary.LittleEndian.Uint16(frame); got != MaxFrameSize {
		t.Errorf("length = %d, want %d", got, MaxFrameSize)
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	sizes := []int{0, 1, 2, 7, 100, 507, 508, 1000, 1019, 1020}
	markers := []byte{MarkerClientObject, MarkerClientBinary, MarkerClientBinaryAck, 0x00, 0x7a}

	for _, size := range sizes {
		for _, marker := range markers {
			payload := make([]byte, size)
			for i := range payload {
				payload[i] = byte(i*7 + size)
			}
			channel := byte(size % 0x80)

			wire, err := Encode(channel, marker, payload)
			if err != nil {
				t.Fatalf("Encode(size=%d) error = %v", size, err)
			}

			dec := NewDecoder(DefaultBufferSize)
			if _, err := dec.Write(wire); err != nil {
				t.Fatalf("Write(size=%d) error = %v", size, err)
			}
			frame, ok, err := dec.Next(ModeStrict)
			if err != nil || !ok {
				t.Fatalf("Next(size=%d) = ok %v, err %v", size, ok, err)
			}
			if frame.Channel != channel || frame.Marker != marker || !bytes.Equal(frame.Payload, payload) {
				t.Errorf("round trip mismatch for size=%d marker=0x%02x: got %s", size, marker, frame)
			}
			if dec.Buffered() != 0 {
				t.Errorf("Buffered() = %d after full frame, want 0", dec.Buffered())
			}
		}
	}
}

func TestChannelName(t *testing.T) {
	tests := []struct {
		ch   byte
		want string
	}{
		{ChannelHandshakeOffer, "handshake-offer"},
		{ChannelFiller, "filler"},
		{0x05, "app(5)"},
		{0x90, "unknown(0x90)"},
	}
	for _, tt := range tests {
		if got := ChannelName(tt.ch); got != tt.want {
			t.Errorf("ChannelName(0x%02x) = %q, want %q", tt.ch, got, tt.want)
		}
	}
}

func TestFrame_IsApplication(t *testing.T) {
	if !(Frame{Channel: 0x7f}).IsApplication() {
		t.Error("channel 0x7f should be an application channel")
	}
	if (Frame{Channel: 0x80}).IsApplication() {
		t.Error("channel 0x80 should not be an application channel")
	}
}
