package protocol

import (
	"bytes"
	"testing"
)

func TestPad(t *testing.T) {
	tests := []struct {
		name       string
		frameSize  int
		wantTotal  int
		wantFiller bool
	}{
		{"minimal frame", 4, TransmissionUnit, true},
		{"50 byte frame", 50, TransmissionUnit, true},
		{"just below threshold", ChunkSize - 1, TransmissionUnit, true},
		{"at threshold", ChunkSize, ChunkSize, false},
		{"between threshold and unit", 510, 510, false},
		{"large frame", 900, 900, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := mustEncode(t, 2, MarkerDeviceObject, bytes.Repeat([]byte{0x5a}, tt.frameSize-FrameOverhead))
			wire := Pad(frame)

			if len(wire) != tt.wantTotal {
				t.Fatalf("len(Pad()) = %d, want %d", len(wire), tt.wantTotal)
			}
			if !bytes.Equal(wire[:len(frame)], frame) {
				t.Fatal("Pad() altered the original frame")
			}

			frames := collect(t, wire, len(wire), ModeStrict)
			if tt.wantFiller {
				if len(frames) != 2 {
					t.Fatalf("decoded %d frames, want 2", len(frames))
				}
				filler := frames[1]
				if !IsFiller(filler) || filler.Marker != MarkerDeviceBinary {
					t.Errorf("second frame = %s, want filler", filler)
				}
				for _, b := range filler.Payload {
					if b != 0 {
						t.Fatal("filler payload is not zero-filled")
					}
				}
			} else if len(frames) != 1 {
				t.Fatalf("decoded %d frames, want 1", len(frames))
			}
		})
	}
}

func TestBuildBinaryAck(t *testing.T) {
	want := []byte{0x04, 0x00, 0x06, MarkerDeviceBinaryAck}
	if got := BuildBinaryAck(6); !bytes.Equal(got, want) {
		t.Errorf("BuildBinaryAck(6) = % x, want % x", got, want)
	}
}

func TestBuildResyncMarker(t *testing.T) {
	m := BuildResyncMarker()
	if len(m) != ResyncMarkerLen {
		t.Fatalf("len = %d, want %d", len(m), ResyncMarkerLen)
	}
	if !bytes.Equal(m, make([]byte, ResyncMarkerLen)) {
		t.Error("resync marker is not all zero")
	}
}

func TestBuildObjectFrame(t *testing.T) {
	wire, err := BuildObjectFrame(ChannelControlResponse, MarkerDeviceObject, map[string]any{
		"channel": 3,
		"action":  "open",
		"status":  "ok",
	})
	if err != nil {
		t.Fatalf("BuildObjectFrame() error = %v", err)
	}

	frames := collect(t, wire, len(wire), ModeStrict)
	if len(frames) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(frames))
	}
	rec, err := DecodeRecord(frames[0].Payload)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if ch, _ := rec.Int("channel"); ch != 3 {
		t.Errorf("channel = %d, want 3", ch)
	}
	if s, _ := rec.String("status"); s != "ok" {
		t.Errorf("status = %q, want ok", s)
	}
}
