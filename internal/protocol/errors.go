package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrBufferFull        = errors.New("protocol: receive buffer full")
	ErrFrameTooLarge     = errors.New("protocol: frame length exceeds buffer capacity")
	ErrFrameTooSmall     = errors.New("protocol: frame length below minimum")
	ErrPayloadTooLarge   = errors.New("protocol: payload too large")
	ErrBadPayload        = errors.New("protocol: malformed structured payload")
	ErrUnexpectedChannel = errors.New("protocol: unexpected channel")
	ErrUnexpectedMarker  = errors.New("protocol: unexpected marker")
)

// ProtocolError is a framing violation. The receiving side must reset the
// session when one surfaces; the byte stream can no longer be trusted.
type ProtocolError struct {
	Op      string
	Channel byte
	Marker  byte
	Length  int
	Err     error
}

// NewProtocolError wraps err with the frame it was raised for.
func NewProtocolError(op string, f Frame, err error) *ProtocolError {
	return &ProtocolError{
		Op:      op,
		Channel: f.Channel,
		Marker:  f.Marker,
		Length:  f.Len(),
		Err:     err,
	}
}

func (e *ProtocolError) Error() string {
	if e.Length == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: channel=%s marker=%s len=%d: %v",
		e.Op, ChannelName(e.Channel), MarkerName(e.Marker), e.Length, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err carries a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
