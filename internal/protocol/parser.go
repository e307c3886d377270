package protocol

import (
	"encoding/binary"
	"fmt"
)

// Mode selects how the decoder treats lengths that cannot belong to a frame.
type Mode int

const (
	// ModeHandshake tolerates line noise: zero padding, keepalive bytes and
	// garbage are discarded silently.
	ModeHandshake Mode = iota
	// ModeStrict treats every impossible length as a fatal framing error.
	ModeStrict
)

func (m Mode) String() string {
	switch m {
	case ModeHandshake:
		return "handshake"
	case ModeStrict:
		return "strict"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Decoder reassembles frames from an arbitrarily chunked byte stream.
//
// The receive buffer has a fixed capacity and is never reallocated. Data is
// appended at the tail and frames are consumed from offset 0; after every
// consumed frame the remaining bytes are shifted back to offset 0.
type Decoder struct {
	buf       []byte
	n         int
	discarded uint64
}

// NewDecoder creates a decoder with the given receive buffer capacity.
// A capacity below MinFrameSize falls back to DefaultBufferSize.
func NewDecoder(capacity int) *Decoder {
	if capacity < MinFrameSize {
		capacity = DefaultBufferSize
	}
	return &Decoder{buf: make([]byte, capacity)}
}

// Write appends as much of p as fits in the free space and returns the
// number of bytes taken. It returns ErrBufferFull when p is non-empty and no
// byte could be stored.
func (d *Decoder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if d.n == len(d.buf) {
		return 0, ErrBufferFull
	}
	k := copy(d.buf[d.n:], p)
	d.n += k
	return k, nil
}

// Next extracts the next complete frame.
//
// It returns ok=false with a nil error when more input is needed. In
// ModeStrict an impossible length yields a *ProtocolError and leaves the
// buffer untouched; the caller is expected to Reset.
func (d *Decoder) Next(mode Mode) (Frame, bool, error) {
	for {
		if d.n < LengthPrefixSize {
			return Frame{}, false, nil
		}

		length := int(binary.LittleEndian.Uint16(d.buf[:LengthPrefixSize]))

		if length > len(d.buf) {
			if mode == ModeStrict {
				return Frame{}, false, &ProtocolError{Op: "decode", Err: fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, len(d.buf))}
			}
			if length == KeepalivePattern {
				// One stray zero byte in front of a real frame.
				d.consume(1)
				continue
			}
			d.discarded += uint64(d.n)
			d.n = 0
			return Frame{}, false, nil
		}

		if length < MinFrameSize {
			if mode == ModeStrict {
				return Frame{}, false, &ProtocolError{Op: "decode", Err: fmt.Errorf("%w: %d", ErrFrameTooSmall, length)}
			}
			// Zero padding between messages.
			d.consume(LengthPrefixSize)
			continue
		}

		if d.n < length {
			return Frame{}, false, nil
		}

		frame := Frame{
			Channel: d.buf[2],
			Payload: append([]byte(nil), d.buf[3:length-1]...),
			Marker:  d.buf[length-1],
		}
		d.shift(length)
		return frame, true, nil
	}
}

// consume drops n bytes of noise from the head of the buffer.
func (d *Decoder) consume(n int) {
	d.discarded += uint64(n)
	d.shift(n)
}

// shift moves the bytes after n to offset 0.
func (d *Decoder) shift(n int) {
	copy(d.buf, d.buf[n:d.n])
	d.n -= n
}

// Reset drops all buffered bytes in place.
func (d *Decoder) Reset() {
	d.n = 0
}

// Buffered returns the number of bytes waiting to be decoded.
func (d *Decoder) Buffered() int {
	return d.n
}

// Cap returns the receive buffer capacity.
func (d *Decoder) Cap() int {
	return len(d.buf)
}

// Discarded returns the total number of noise bytes dropped in ModeHandshake.
func (d *Decoder) Discarded() uint64 {
	return d.discarded
}
