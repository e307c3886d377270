package protocol

// Frame constructors for the reserved channels and the padding layer.

// BuildObjectFrame encodes v as a structured payload and wraps it in a frame.
func BuildObjectFrame(channel, marker byte, v any) ([]byte, error) {
	payload, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Encode(channel, marker, payload)
}

// BuildBinaryAck builds the device acknowledgement for one received chunk.
func BuildBinaryAck(channel byte) []byte {
	frame, _ := Encode(channel, MarkerDeviceBinaryAck, nil)
	return frame
}

// BuildResyncMarker returns the all-zero line cue written on every session
// reset. No valid frame starts with a zero length, so a receiver in handshake
// mode skips it while a strict receiver treats it as a reset.
func BuildResyncMarker() []byte {
	return make([]byte, ResyncMarkerLen)
}

// BuildFiller builds a filler frame of exactly size bytes (size >= 4).
func BuildFiller(size int) []byte {
	if size < MinFrameSize {
		size = MinFrameSize
	}
	frame, _ := Encode(ChannelFiller, MarkerDeviceBinary, make([]byte, size-FrameOverhead))
	return frame
}

// Pad appends a filler frame to frame when it is shorter than ChunkSize so that
// both frames together are exactly TransmissionUnit bytes. Larger frames are
// returned unchanged.
//
// Example:
//
//	frame, _ := Encode(0, MarkerDeviceObject, payload) // 50 bytes
//	wire := Pad(frame)                                 // 512 bytes
func Pad(frame []byte) []byte {
	if len(frame) >= ChunkSize {
		return frame
	}
	out := make([]byte, 0, TransmissionUnit)
	out = append(out, frame...)
	out = append(out, BuildFiller(TransmissionUnit-len(frame))...)
	return out
}

// IsFiller reports whether f is a padding frame.
func IsFiller(f Frame) bool {
	return f.Channel == ChannelFiller
}
