// Package protocol implements the FLUX USB link wire format.
//
// This package handles framing, reassembly, and construction of the binary
// frames exchanged between the device and a host client over a point-to-point
// USB serial link. The link itself gives no framing guarantees, so every frame
// is self-delimiting and the receiver must be able to resynchronise after noise.
//
// # Frame Format
//
// Every frame has this structure:
//   - Length: 2 bytes (little-endian, counts the whole frame including itself)
//   - Channel: 1 byte
//   - Payload: Length-4 bytes
//   - Marker: 1 byte (payload encoding and sender side)
//
// The smallest legal frame is 4 bytes (empty payload).
//
// # Channels
//
// Channels 0x00-0x7f carry application traffic. The remaining channels that are
// in use are reserved for the link itself:
//   - 0xf0 / 0xf1: channel open/close request and response
//   - 0xfa / 0xfb: ping and pong
//   - 0xfc: client asks the device to resend the handshake offer
//   - 0xfd: device confirms the handshake
//   - 0xfe: client acknowledges the handshake offer
//   - 0xff: device handshake offer
//   - 0xa0: filler (padding) frames, always dropped by the receiver
//
// # Markers
//
// Device side: 0xf0 structured, 0xff binary, 0xc0 binary ack.
// Client side: 0xb0 structured, 0xbf binary, 0x80 binary ack.
//
// Structured payloads are CBOR maps (see Marshal and Unmarshal).
//
// # Usage Example - Decoding
//
//	dec := protocol.NewDecoder(protocol.DefaultBufferSize)
//	_, _ = dec.Write(chunk)
//	for {
//	    frame, ok, err := dec.Next(protocol.ModeStrict)
//	    if err != nil {
//	        return err // fatal framing error, reset the session
//	    }
//	    if !ok {
//	        break // need more bytes
//	    }
//	    fmt.Println(frame)
//	}
//
// # Usage Example - Construction
//
//	payload, _ := protocol.Marshal(map[string]any{"cmd": "status"})
//	frame, err := protocol.Encode(0, protocol.MarkerClientObject, payload)
//
// # Resynchronisation
//
// Before the handshake completes the decoder runs in ModeHandshake, where it
// tolerates zero padding and idle-line keepalive noise and silently drops
// garbage. Once a session is established it runs in ModeStrict, where any
// oversize or undersize length is a fatal *ProtocolError.
//
// # Thread Safety
//
// A Decoder is owned by exactly one connection and is not safe for concurrent
// use. The encoding helpers are stateless.
package protocol
