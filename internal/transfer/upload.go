package transfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/muurk/fluxusb/internal/protocol"
)

var (
	ErrUnexpectedAck  = errors.New("transfer: ack without outstanding chunk")
	ErrAlreadyStarted = errors.New("transfer: upload already started")
	ErrFinished       = errors.New("transfer: upload already finished")
	ErrOverflow       = errors.New("transfer: received more bytes than announced")
)

// Upload sends Total bytes from a reader, one acknowledged chunk at a time.
type Upload struct {
	Total int64
	Sent  int64

	src  io.Reader
	send func(chunk []byte) error
	done func(err error)
	buf  []byte

	started     bool
	outstanding bool
	finished    bool
}

// NewUpload prepares an upload. send transmits one chunk; it is called with a
// buffer that is reused for the next chunk. done runs exactly once, with nil
// after the last chunk was acknowledged or with the error that stopped the
// upload.
func NewUpload(src io.Reader, total int64, send func(chunk []byte) error, done func(err error)) *Upload {
	if done == nil {
		done = func(error) {}
	}
	return &Upload{
		Total: total,
		src:   src,
		send:  send,
		done:  done,
		buf:   make([]byte, protocol.ChunkSize),
	}
}

// Start sends the first chunk. An empty upload completes immediately.
func (u *Upload) Start() error {
	if u.started {
		return ErrAlreadyStarted
	}
	u.started = true
	return u.next()
}

// OnAck handles the client's ack for the outstanding chunk and sends the
// next one, or completes the upload when everything was acknowledged.
func (u *Upload) OnAck() error {
	if u.finished {
		return ErrFinished
	}
	if !u.outstanding {
		return ErrUnexpectedAck
	}
	u.outstanding = false
	return u.next()
}

// Outstanding reports whether a chunk awaits its ack.
func (u *Upload) Outstanding() bool {
	return u.outstanding
}

// Done reports whether the upload finished, successfully or not.
func (u *Upload) Done() bool {
	return u.finished
}

func (u *Upload) next() error {
	remaining := u.Total - u.Sent
	if remaining <= 0 {
		u.finish(nil)
		return nil
	}

	n := int64(len(u.buf))
	if remaining < n {
		n = remaining
	}
	chunk := u.buf[:n]
	if _, err := io.ReadFull(u.src, chunk); err != nil {
		err = fmt.Errorf("transfer: read source at %d/%d: %w", u.Sent, u.Total, err)
		u.finish(err)
		return err
	}
	if err := u.send(chunk); err != nil {
		u.finish(err)
		return err
	}

	u.Sent += n
	u.outstanding = true
	return nil
}

func (u *Upload) finish(err error) {
	if u.finished {
		return
	}
	u.finished = true
	u.outstanding = false
	u.done(err)
}

// Progress returns the fraction sent in [0, 1].
func (u *Upload) Progress() float64 {
	if u.Total <= 0 {
		return 1
	}
	return float64(u.Sent) / float64(u.Total)
}
