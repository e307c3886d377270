package link

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/protocol"
)

type fakeProvider struct{}

func (fakeProvider) Info() map[string]any {
	return map[string]any{"serial": "FX0001", "model": "delta"}
}

func (fakeProvider) Status() []byte { return []byte("ST_IDLE 42") }

type fakeHandler struct {
	payloads    []protocol.Record
	binaries    [][]byte
	acks        int
	closed      int
	onPayload   func(protocol.Record) error
	onBinaryAck func() error
}

func (h *fakeHandler) OnPayload(rec protocol.Record) error {
	h.payloads = append(h.payloads, rec)
	if h.onPayload != nil {
		return h.onPayload(rec)
	}
	return nil
}

func (h *fakeHandler) OnBinary(chunk []byte) error {
	h.binaries = append(h.binaries, chunk)
	return nil
}

func (h *fakeHandler) OnBinaryAck() error {
	h.acks++
	if h.onBinaryAck != nil {
		return h.onBinaryAck()
	}
	return nil
}

func (h *fakeHandler) Close() error {
	h.closed++
	return nil
}

type harness struct {
	t        *testing.T
	rec      *Recorder
	conn     *Connection
	handlers map[int]*fakeHandler
	senders  map[int]channel.Sender
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		rec:      &Recorder{},
		handlers: map[int]*fakeHandler{},
		senders:  map[int]channel.Sender{},
	}
	factory := func(index int, kind channel.Kind, s channel.Sender) (channel.Handler, error) {
		if kind == channel.KindCamera {
			return nil, &os.PathError{Op: "dial", Path: "/run/camera.sock", Err: os.ErrNotExist}
		}
		fh := &fakeHandler{}
		h.handlers[index] = fh
		h.senders[index] = s
		return fh, nil
	}
	base := []Option{
		WithName("test"),
		WithRand(rand.New(rand.NewSource(1))),
		WithInfoProvider(fakeProvider{}),
		WithHandlerFactory(factory),
	}
	h.conn = New(h.rec, append(base, opts...)...)
	if err := h.conn.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return h
}

func (h *harness) feed(b []byte) {
	h.t.Helper()
	if err := h.conn.Feed(b); err != nil {
		h.t.Fatalf("Feed() error = %v", err)
	}
}

func (h *harness) handshake(level int) protocol.Record {
	h.t.Helper()
	ack := map[string]any{
		"session": h.conn.Session(),
		"client":  map[string]any{"name": "test-host"},
	}
	if level > 0 {
		ack["protocol_level"] = level
	}
	h.rec.Reset()
	h.feed(clientObject(h.t, protocol.ChannelHandshakeAck, ack))
	frames := h.rec.Take()
	if len(frames) != 1 || frames[0].Channel != protocol.ChannelHandshakeComplete {
		h.t.Fatalf("handshake reply = %v, want one handshake-complete frame", frames)
	}
	return decode(h.t, frames[0])
}

func (h *harness) control(ch any, action, kind string) string {
	h.t.Helper()
	req := map[string]any{"channel": ch, "action": action}
	if kind != "" {
		req["type"] = kind
	}
	h.rec.Reset()
	h.feed(clientObject(h.t, protocol.ChannelControlRequest, req))
	frames := h.rec.Take()
	if len(frames) != 1 || frames[0].Channel != protocol.ChannelControlResponse {
		h.t.Fatalf("control reply = %v, want one control-response frame", frames)
	}
	rec := decode(h.t, frames[0])
	if got := fmt.Sprint(rec["channel"]); got != fmt.Sprint(ch) {
		h.t.Errorf("reply channel = %s, want %v", got, ch)
	}
	if got, _ := rec.String("action"); got != action {
		h.t.Errorf("reply action = %q, want %q", got, action)
	}
	status, _ := rec.String("status")
	return status
}

func clientObject(t *testing.T, ch byte, v any) []byte {
	t.Helper()
	b, err := protocol.BuildObjectFrame(ch, protocol.MarkerClientObject, v)
	if err != nil {
		t.Fatalf("BuildObjectFrame() error = %v", err)
	}
	return b
}

func raw(t *testing.T, ch, marker byte, payload []byte) []byte {
	t.Helper()
	b, err := protocol.Encode(ch, marker, payload)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return b
}

func decode(t *testing.T, f protocol.Frame) protocol.Record {
	t.Helper()
	rec, err := protocol.DecodeRecord(f.Payload)
	if err != nil {
		t.Fatalf("DecodeRecord(%s) error = %v", f, err)
	}
	return rec
}

func offerSession(t *testing.T, frames []protocol.Frame) uint16 {
	t.Helper()
	if len(frames) == 0 {
		t.Fatal("no frames written")
	}
	last := frames[len(frames)-1]
	if last.Channel != protocol.ChannelHandshakeOffer || last.Marker != protocol.MarkerDeviceObject {
		t.Fatalf("last frame = %s, want handshake offer", last)
	}
	s, ok := decode(t, last).Int("session")
	if !ok {
		t.Fatal("offer has no session")
	}
	return uint16(s)
}

func TestConnection_StartSendsResyncAndOffer(t *testing.T) {
	h := newHarness(t)

	out := h.rec.Bytes()
	if len(out) < protocol.ResyncMarkerLen || !bytes.Equal(out[:protocol.ResyncMarkerLen], make([]byte, protocol.ResyncMarkerLen)) {
		t.Fatalf("output does not start with the resync marker: % x", out)
	}

	frames := h.rec.Frames()
	if len(frames) != 1 {
		t.Fatalf("Start() wrote %d frames, want 1", len(frames))
	}
	if got := offerSession(t, frames); got != h.conn.Session() {
		t.Errorf("offer session = %d, want %d", got, h.conn.Session())
	}
	if serial, _ := decode(t, frames[0]).String("serial"); serial != "FX0001" {
		t.Errorf("offer serial = %q, want device info", serial)
	}
	if h.conn.State() != StateAwaitingHandshake {
		t.Errorf("State() = %s, want awaiting-handshake", h.conn.State())
	}
}

func TestConnection_Handshake(t *testing.T) {
	h := newHarness(t)
	session := h.conn.Session()

	reply := h.handshake(0)

	if got, _ := reply.Int("session"); uint16(got) != session {
		t.Errorf("complete session = %d, want %d", got, session)
	}
	if _, ok := reply["protocol_level"]; ok {
		t.Error("protocol_level echoed without being requested")
	}
	if !h.conn.Handshaked() {
		t.Fatal("connection not handshaked")
	}
	if h.conn.PaddingEnabled() {
		t.Error("padding enabled at protocol level 0")
	}
	profile, ok := h.conn.ClientProfile().(map[string]any)
	if !ok || profile["name"] != "test-host" {
		t.Errorf("ClientProfile() = %v", h.conn.ClientProfile())
	}
}

func TestConnection_HandshakeIgnored(t *testing.T) {
	tests := []struct {
		name  string
		frame func(session uint16) []byte
	}{
		{
			name: "mismatched session",
			frame: func(session uint16) []byte {
				return clientObject(t, protocol.ChannelHandshakeAck, map[string]any{"session": session + 1})
			},
		},
		{
			name: "wrong marker",
			frame: func(session uint16) []byte {
				b, _ := protocol.BuildObjectFrame(protocol.ChannelHandshakeAck, protocol.MarkerClientBinary, map[string]any{"session": session})
				return b
			},
		},
		{
			name: "control before handshake",
			frame: func(uint16) []byte {
				return clientObject(t, protocol.ChannelControlRequest, map[string]any{"channel": 0, "action": "open"})
			},
		},
		{
			name: "application frame before handshake",
			frame: func(uint16) []byte {
				return raw(t, 2, protocol.MarkerClientBinary, []byte{1, 2, 3})
			},
		},
		{
			name: "filler",
			frame: func(uint16) []byte {
				return raw(t, protocol.ChannelFiller, protocol.MarkerDeviceBinary, make([]byte, 40))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			session := h.conn.Session()
			h.rec.Reset()

			h.feed(tt.frame(session))

			if h.rec.Len() != 0 {
				t.Errorf("device replied with % x", h.rec.Bytes())
			}
			if h.conn.State() != StateAwaitingHandshake || h.conn.Session() != session {
				t.Errorf("state changed to %s/%d", h.conn.State(), h.conn.Session())
			}
		})
	}
}

func TestConnection_BadAckPayloadResets(t *testing.T) {
	h := newHarness(t)
	old := h.conn.Session()
	h.rec.Reset()

	h.feed(raw(t, protocol.ChannelHandshakeAck, protocol.MarkerClientObject, []byte{0xff, 0x13}))

	if got := offerSession(t, h.rec.Frames()); got == old {
		t.Errorf("reset reused session %d", old)
	}
	if h.conn.Session() == old {
		t.Error("session unchanged after malformed ack")
	}
}

func TestConnection_ResendBeforeHandshake(t *testing.T) {
	h := newHarness(t)
	session := h.conn.Session()
	h.rec.Reset()

	h.feed(raw(t, protocol.ChannelHandshakeResend, protocol.MarkerClientObject, nil))

	out := h.rec.Bytes()
	if bytes.HasPrefix(out, make([]byte, protocol.ResyncMarkerLen)) {
		t.Error("resend emitted a resync marker")
	}
	if got := offerSession(t, h.rec.Frames()); got != session {
		t.Errorf("resent offer session = %d, want %d", got, session)
	}
	if h.conn.Handshaked() {
		t.Error("resend completed the handshake")
	}
}

func TestConnection_ResendAfterHandshakeResets(t *testing.T) {
	h := newHarness(t)
	h.handshake(0)
	if status := h.control(1, ActionOpen, ""); status != string(channel.StatusOK) {
		t.Fatalf("open status = %s", status)
	}
	old := h.conn.Session()
	h.rec.Reset()

	h.feed(raw(t, protocol.ChannelHandshakeResend, protocol.MarkerClientObject, nil))

	if h.conn.Handshaked() {
		t.Error("still handshaked after resend request")
	}
	if got := offerSession(t, h.rec.Frames()); got == old {
		t.Errorf("new offer reused session %d", old)
	}
	if h.handlers[1].closed != 1 {
		t.Errorf("channel 1 closed %d times, want 1", h.handlers[1].closed)
	}
	if len(h.conn.Channels()) != 0 {
		t.Errorf("Channels() = %v after reset", h.conn.Channels())
	}
}

type constSource struct{}

func (constSource) Int63() int64 { return 0 }
func (constSource) Seed(int64) {}

func TestConnection_SessionNeverRepeats(t *testing.T) {
	h := newHarness(t, WithRand(rand.New(constSource{})))

	prev := h.conn.Session()
	for i := 0; i < 5; i++ {
		if err := h.conn.Reset(CauseManual); err != nil {
			t.Fatalf("Reset() error = %v", err)
		}
		if h.conn.Session() == prev {
			t.Fatalf("reset %d reused session %d", i, prev)
		}
		prev = h.conn.Session()
	}
}

func TestConnection_Control(t *testing.T) {
	h := newHarness(t)
	h.handshake(0)

	steps := []struct {
		name    string
		channel any
		action  string
		kind    string
		want    channel.Status
	}{
		{"open free slot", 0, ActionOpen, "", channel.StatusOK},
		{"open occupied slot", 0, ActionOpen, "robot", channel.StatusResourceBusy},
		{"open out of range", 9, ActionOpen, "", channel.StatusError},
		{"open reserved index", 0xf0, ActionOpen, "", channel.StatusError},
		{"open negative", -1, ActionOpen, "", channel.StatusError},
		{"open beyond int64", uint64(1 << 63), ActionOpen, "", channel.StatusError},
		{"open non-integer channel", "zero", ActionOpen, "", channel.StatusError},
		{"close unopened", 3, ActionClose, "", channel.StatusResourceBusy},
		{"camera unavailable", 4, ActionOpen, "camera", channel.StatusSubsystemError},
		{"unknown kind", 5, ActionOpen, "toaster", channel.StatusBadParams},
		{"unknown action", 5, "rename", "", channel.StatusError},
		{"open config", 7, ActionOpen, "config", channel.StatusOK},
		{"close open slot", 0, ActionClose, "", channel.StatusOK},
		{"reopen after close", 0, ActionOpen, "", channel.StatusOK},
	}

	for _, st := range steps {
		if got := h.control(st.channel, st.action, st.kind); got != string(st.want) {
			t.Errorf("%s: status = %s, want %s", st.name, got, st.want)
		}
	}

	if got := h.conn.Channels(); len(got) != 2 || got[0] != 0 || got[1] != 7 {
		t.Errorf("Channels() = %v, want [0 7]", got)
	}
	if !h.conn.Handshaked() {
		t.Error("control errors dropped the session")
	}
}

func TestConnection_PayloadReachesHandler(t *testing.T) {
	h := newHarness(t)
	h.handshake(0)
	h.control(0, ActionOpen, "")

	h.feed(clientObject(t, 0, map[string]any{"cmd": "status"}))
	h.feed(clientObject(t, 5, map[string]any{"cmd": "ignored"}))

	fh := h.handlers[0]
	if len(fh.payloads) != 1 {
		t.Fatalf("handler got %d payloads, want 1", len(fh.payloads))
	}
	if cmd, _ := fh.payloads[0].String("cmd"); cmd != "status" {
		t.Errorf("payload cmd = %q", cmd)
	}
}

func TestConnection_BinaryAckPerChunk(t *testing.T) {
	h := newHarness(t)
	h.handshake(0)
	h.control(2, ActionOpen, "")
	h.rec.Reset()

	var stream []byte
	for i := 0; i < 3; i++ {
		stream = append(stream, raw(t, 2, protocol.MarkerClientBinary, bytes.Repeat([]byte{byte(i)}, protocol.ChunkSize))...)
	}
	h.feed(stream)

	frames := h.rec.Take()
	if len(frames) != 3 {
		t.Fatalf("device wrote %d frames for 3 chunks, want 3 acks", len(frames))
	}
	for _, f := range frames {
		if f.Channel != 2 || f.Marker != protocol.MarkerDeviceBinaryAck || len(f.Payload) != 0 {
			t.Errorf("frame %s is not a binary ack on channel 2", f)
		}
	}
	if got := len(h.handlers[2].binaries); got != 3 {
		t.Errorf("handler got %d chunks, want 3", got)
	}
	if h.handlers[2].binaries[1][0] != 1 {
		t.Error("chunks delivered out of order")
	}

	// Unbound channels are still acknowledged.
	h.feed(raw(t, 6, protocol.MarkerClientBinary, []byte{9}))
	if frames := h.rec.Take(); len(frames) != 1 || frames[0].Marker != protocol.MarkerDeviceBinaryAck {
		t.Errorf("unbound channel reply = %v, want one ack", frames)
	}
}

func TestConnection_Ping(t *testing.T) {
	for _, handshaked := range []bool{false, true} {
		h := newHarness(t)
		if handshaked {
			h.handshake(0)
		}
		session := h.conn.Session()
		h.rec.Reset()

		h.feed(raw(t, protocol.ChannelPing, 0x42, []byte{0xde, 0xad}))

		frames := h.rec.Take()
		if len(frames) != 1 {
			t.Fatalf("handshaked=%v: %d frames, want 1 pong", handshaked, len(frames))
		}
		pong := frames[0]
		if pong.Channel != protocol.ChannelPong || pong.Marker != 0x42 {
			t.Errorf("handshaked=%v: pong = %s, want channel 0xfb marker 0x42", handshaked, pong)
		}
		if string(pong.Payload) != "ST_IDLE 42" {
			t.Errorf("handshaked=%v: pong payload = %q", handshaked, pong.Payload)
		}
		if h.conn.Handshaked() != handshaked || h.conn.Session() != session {
			t.Errorf("handshaked=%v: ping changed session state", handshaked)
		}
	}
}

func TestConnection_GarbageResync(t *testing.T) {
	h := newHarness(t)
	session := h.conn.Session()
	h.rec.Reset()

	for i := 0; i < 2000; i++ {
		h.feed([]byte{0x00, 0x00})
	}
	if h.rec.Len() != 0 || h.conn.Session() != session || h.conn.Handshaked() {
		t.Fatal("zero padding changed connection state")
	}

	blob := make([]byte, protocol.DefaultBufferSize)
	rand.New(rand.NewSource(99)).Read(blob)
	blob[0], blob[1] = 0xff, 0xff
	h.feed(blob)

	h.handshake(0)
	if !h.conn.Handshaked() {
		t.Error("handshake did not complete after garbage")
	}
}

func TestConnection_ByteAtATime(t *testing.T) {
	h := newHarness(t)
	ack := clientObject(t, protocol.ChannelHandshakeAck, map[string]any{"session": h.conn.Session()})
	for _, b := range ack {
		h.feed([]byte{b})
	}
	if !h.conn.Handshaked() {
		t.Error("handshake fed one byte at a time did not complete")
	}
}

func TestConnection_PostHandshakeFramingResets(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"zero length", []byte{0x00, 0x00, 0x07, 0x07}},
		{"oversize length", []byte{0x00, 0x05, 0x00, 0x07}},
		{"reserved channel", nil},
		{"bad application marker", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.handshake(0)
			h.control(0, ActionOpen, "")
			h.control(3, ActionOpen, "")
			old := h.conn.Session()
			h.rec.Reset()

			input := tt.input
			switch tt.name {
			case "reserved channel":
				input = clientObject(t, protocol.ChannelHandshakeAck, map[string]any{"session": old})
			case "bad application marker":
				input = raw(t, 0, 0x11, nil)
			}
			h.feed(input)

			if h.conn.Handshaked() {
				t.Fatal("still handshaked after framing error")
			}
			out := h.rec.Bytes()
			if !bytes.HasPrefix(out, make([]byte, protocol.ResyncMarkerLen)) {
				t.Error("reset did not emit the resync marker")
			}
			if got := offerSession(t, h.rec.Frames()); got == old || got != h.conn.Session() {
				t.Errorf("new offer session = %d (old %d, current %d)", got, old, h.conn.Session())
			}
			for _, i := range []int{0, 3} {
				if h.handlers[i].closed != 1 {
					t.Errorf("channel %d closed %d times, want 1", i, h.handlers[i].closed)
				}
			}
		})
	}
}

func TestConnection_ResetDropsRestOfInput(t *testing.T) {
	h := newHarness(t)
	h.handshake(0)
	h.rec.Reset()

	input := append([]byte{0x00, 0x00, 0x01, 0x01}, raw(t, protocol.ChannelPing, 0x01, nil)...)
	h.feed(input)

	for _, f := range h.rec.Frames() {
		if f.Channel == protocol.ChannelPong {
			t.Error("frame after a reset in the same read was dispatched")
		}
	}
}

func TestConnection_HandlerFailuresReset(t *testing.T) {
	tests := []struct {
		name string
		fn   func(protocol.Record) error
	}{
		{"error", func(protocol.Record) error { return errors.New("robot stack offline") }},
		{"panic", func(protocol.Record) error { panic("nil map") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.handshake(0)
			h.control(0, ActionOpen, "")
			h.handlers[0].onPayload = tt.fn
			old := h.conn.Session()

			h.feed(clientObject(t, 0, map[string]any{"cmd": "move"}))

			if h.conn.Handshaked() || h.conn.Session() == old {
				t.Error("handler failure did not reset the session")
			}
			if h.handlers[0].closed != 1 {
				t.Errorf("handler closed %d times, want 1", h.handlers[0].closed)
			}
		})
	}
}

func TestConnection_TransportErrorEscalates(t *testing.T) {
	var surfaced error
	h := newHarness(t, WithOnError(func(err error) { surfaced = err }))
	h.handshake(0)
	session := h.conn.Session()
	h.rec.Err = errors.New("usb: broken pipe")

	err := h.conn.Feed(raw(t, protocol.ChannelPing, 0x01, nil))

	if !IsTransportError(err) {
		t.Fatalf("Feed() error = %v, want TransportError", err)
	}
	if surfaced != err {
		t.Errorf("OnError got %v, want %v", surfaced, err)
	}
	if h.conn.Session() != session {
		t.Error("transport error triggered a session reset")
	}
}

func TestConnection_PartialWrites(t *testing.T) {
	rec := &Recorder{MaxWrite: 3}
	conn := New(rec, WithInfoProvider(fakeProvider{}))
	if err := conn.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := offerSession(t, rec.Frames()); got != conn.Session() {
		t.Errorf("offer session = %d, want %d", got, conn.Session())
	}
	if rec.Writes < 2 {
		t.Errorf("Writes = %d, expected the write loop to retry", rec.Writes)
	}
}

func TestConnection_Padding(t *testing.T) {
	h := newHarness(t)
	reply := h.handshake(1)

	if level, _ := reply.Int("protocol_level"); level != 1 {
		t.Errorf("complete protocol_level = %d, want 1", level)
	}
	if !h.conn.PaddingEnabled() || h.conn.ProtocolLevel() != 1 {
		t.Fatal("padding not negotiated")
	}

	h.control(0, ActionOpen, "")
	h.rec.Reset()

	// 46 bytes of CBOR payload makes a 50-byte frame.
	msg := map[string]any{"data": bytes.Repeat([]byte{0x61}, 38)}
	if err := h.senders[0].SendObject(msg); err != nil {
		t.Fatalf("SendObject() error = %v", err)
	}

	if h.rec.Len() != protocol.TransmissionUnit {
		t.Fatalf("wrote %d bytes, want %d", h.rec.Len(), protocol.TransmissionUnit)
	}
	all := h.rec.Frames()
	if len(all) != 2 || all[0].Len() != 50 || !protocol.IsFiller(all[1]) {
		t.Fatalf("frames = %v, want 50-byte frame plus filler", all)
	}
	if frames := h.rec.Take(); len(frames) != 1 || frames[0].Channel != 0 {
		t.Errorf("application view = %v, want only the channel 0 frame", frames)
	}

	// Large frames are never padded.
	if err := h.senders[0].SendBinary(make([]byte, protocol.ChunkSize)); err != nil {
		t.Fatalf("SendBinary() error = %v", err)
	}
	if h.rec.Len() != protocol.ChunkSize+protocol.FrameOverhead {
		t.Errorf("full chunk wrote %d bytes", h.rec.Len())
	}
}

func TestConnection_PaddingNotAllowed(t *testing.T) {
	h := newHarness(t, WithPaddingAllowed(false))
	reply := h.handshake(1)

	if _, ok := reply["protocol_level"]; ok {
		t.Error("protocol_level offered while padding is disallowed")
	}
	if h.conn.PaddingEnabled() {
		t.Error("padding enabled while disallowed")
	}
}

func TestConnection_HandlerRelease(t *testing.T) {
	h := newHarness(t)
	h.handshake(0)
	h.control(4, ActionOpen, "")

	if err := h.senders[4].Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if h.handlers[4].closed != 1 {
		t.Errorf("handler closed %d times, want 1", h.handlers[4].closed)
	}
	if err := h.senders[4].Release(); err == nil {
		t.Error("second Release() succeeded")
	}
	if status := h.control(4, ActionOpen, ""); status != string(channel.StatusOK) {
		t.Errorf("reopen after release = %s", status)
	}
}

func TestConnection_StaleSender(t *testing.T) {
	h := newHarness(t)
	h.handshake(0)
	h.control(1, ActionOpen, "")
	stale := h.senders[1]

	if err := h.conn.Reset(CauseManual); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	h.rec.Reset()

	if err := stale.SendObject(map[string]any{"late": true}); !errors.Is(err, ErrStaleChannel) {
		t.Errorf("SendObject() after reset error = %v, want ErrStaleChannel", err)
	}
	if h.rec.Len() != 0 {
		t.Error("stale sender reached the wire")
	}
}

func TestConnection_Lifecycle(t *testing.T) {
	rec := &Recorder{}
	conn := New(rec)

	if err := conn.Feed([]byte{0x04, 0x00, 0xfa, 0x00}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Feed() before Start error = %v", err)
	}
	if err := conn.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := conn.Feed([]byte{0x00}); !errors.Is(err, ErrClosed) {
		t.Errorf("Feed() after Close error = %v", err)
	}
	if err := conn.Send(0, protocol.MarkerDeviceObject, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v", err)
	}
}
