package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame layout constants
const (
	FrameOverhead    = 4      // length(2) + channel(1) + marker(1)
	MinFrameSize     = 4      // empty payload
	MaxFrameSize     = 0xffff // u16 length field
	LengthPrefixSize = 2

	DefaultBufferSize = 1024   // receive buffer capacity
	KeepalivePattern  = 0x0500 // stray leading 0x00 in front of a frame on an idle line
	ResyncMarkerLen   = 16     // all-zero bytes written on every session reset

	ChunkSize        = 508 // max binary chunk, also the padding threshold
	TransmissionUnit = 512 // frame + filler total when padding is on
)

// Reserved channels
const (
	ChannelControlRequest    = 0xf0 // client -> device open/close
	ChannelControlResponse   = 0xf1 // device -> client open/close result
	ChannelPing              = 0xfa // client liveness probe
	ChannelPong              = 0xfb // device liveness reply
	ChannelHandshakeResend   = 0xfc // client asks for a new offer
	ChannelHandshakeComplete = 0xfd // device confirms session
	ChannelHandshakeAck      = 0xfe // client accepts offer
	ChannelHandshakeOffer    = 0xff // device offer
	ChannelFiller            = 0xa0 // padding, never carries content

	MaxApplicationChannel = 0x7f
)

// Markers
const (
	MarkerDeviceObject    = 0xf0
	MarkerDeviceBinary    = 0xff
	MarkerDeviceBinaryAck = 0xc0

	MarkerClientObject    = 0xb0
	MarkerClientBinary    = 0xbf
	MarkerClientBinaryAck = 0x80
)

// Frame is one decoded unit of the wire protocol.
// Payload is owned by the frame and stays valid after the decoder compacts.
type Frame struct {
	Channel byte
	Payload []byte
	Marker  byte
}

// Len returns the encoded size of the frame.
func (f Frame) Len() int {
	return len(f.Payload) + FrameOverhead
}

// IsApplication reports whether the frame targets an application channel.
func (f Frame) IsApplication() bool {
	return f.Channel <= MaxApplicationChannel
}

// Encode builds a complete frame.
func Encode(channel, marker byte, payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, len(payload)+FrameOverhead), channel, marker, payload)
}

// AppendFrame appends an encoded frame to dst.
//
// Frame Structure:
//
//	[0-1]   length     Total frame size, little-endian, self-inclusive
//	[2]     channel    Channel index
//	[3..n]  payload    length-4 bytes
//	[n+1]   marker     Encoding/sender marker
func AppendFrame(dst []byte, channel, marker byte, payload []byte) ([]byte, error) {
	length := len(payload) + FrameOverhead
	if length > MaxFrameSize {
		return dst, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxFrameSize-FrameOverhead)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(length))
	dst = append(dst, channel)
	dst = append(dst, payload...)
	dst = append(dst, marker)
	return dst, nil
}

// String returns a debug representation of the frame
func (f Frame) String() string {
	return fmt.Sprintf("Frame{channel=%s, marker=%s, len=%d}",
		ChannelName(f.Channel), MarkerName(f.Marker), f.Len())
}

// ChannelName returns a human-readable channel name
func ChannelName(ch byte) string {
	switch ch {
	case ChannelControlRequest:
		return "control-request"
	case ChannelControlResponse:
		return "control-response"
	case ChannelPing:
		return "ping"
	case ChannelPong:
		return "pong"
	case ChannelHandshakeResend:
		return "handshake-resend"
	case ChannelHandshakeComplete:
		return "handshake-complete"
	case ChannelHandshakeAck:
		return "handshake-ack"
	case ChannelHandshakeOffer:
		return "handshake-offer"
	case ChannelFiller:
		return "filler"
	}
	if ch <= MaxApplicationChannel {
		return fmt.Sprintf("app(%d)", ch)
	}
	return fmt.Sprintf("unknown(0x%02x)", ch)
}

// MarkerName returns a human-readable marker name
func MarkerName(m byte) string {
	switch m {
	case MarkerDeviceObject:
		return "device-object"
	case MarkerDeviceBinary:
		return "device-binary"
	case MarkerDeviceBinaryAck:
		return "device-binary-ack"
	case MarkerClientObject:
		return "client-object"
	case MarkerClientBinary:
		return "client-binary"
	case MarkerClientBinaryAck:
		return "client-binary-ack"
	default:
		return fmt.Sprintf("unknown(0x%02x)", m)
	}
}
