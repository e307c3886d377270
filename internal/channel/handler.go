package channel

import (
	"errors"
	"io/fs"
	"net"
	"syscall"

	"github.com/muurk/fluxusb/internal/protocol"
)

// ErrUnavailable marks a handler construction failure caused by a missing
// local resource (socket, file, device).
var ErrUnavailable = errors.New("channel: backing resource unavailable")

// Handler consumes the traffic of one application channel.
//
// Callbacks run synchronously on the link's single thread of control. A
// handler may send from inside any callback; it must send the next binary
// chunk only from OnBinaryAck.
type Handler interface {
	// OnPayload receives a decoded structured payload.
	OnPayload(rec protocol.Record) error
	// OnBinary receives one binary chunk. The ack was already sent.
	OnBinary(chunk []byte) error
	// OnBinaryAck signals that the client accepted the last chunk sent.
	OnBinaryAck() error
	// Close releases the handler's resources. It must not send.
	Close() error
}

// Sender is the handler's view of its own channel.
type Sender interface {
	Index() int
	SendObject(v any) error
	SendBinary(chunk []byte) error
	// Release closes the channel from the handler side. The slot goes through
	// the regular close path and becomes reusable.
	Release() error
}

// Factory builds the handler for a newly opened channel.
// Errors for which IsIOError reports true map to StatusSubsystemError.
type Factory func(index int, kind Kind, s Sender) (Handler, error)

// IsIOError reports whether err is an I/O-class failure.
func IsIOError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return true
	}
	var pathErr *fs.PathError
	var opErr *net.OpError
	var errno syscall.Errno
	return errors.As(err, &pathErr) || errors.As(err, &opErr) || errors.As(err, &errno)
}
