//go:build unix

package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/muurk/fluxusb/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const (
	usbPollInterval = 200 // ms
	usbWriteTimeout = 2000
	usbRetryDelay   = 250 * time.Millisecond
	usbRetryMax     = 10 * time.Second
	usbReadSize     = 4096
)

var errHangup = errors.New("usb: host hung up")

// USB drives the link over a USB gadget serial device. The device node is
// reopened whenever the host disconnects, backing off while it stays absent.
type USB struct {
	srv   *Server
	path  string
	retry time.Duration
	max   time.Duration
}

// NewUSB creates a USB transport for the tty at path.
func NewUSB(srv *Server, path string) *USB {
	return &USB{srv: srv, path: path, retry: usbRetryDelay, max: usbRetryMax}
}

// Name implements Transport.
func (u *USB) Name() string { return "usb" }

// Serve implements Transport.
func (u *USB) Serve(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.retry
	b.MaxInterval = u.max
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		opened, err := u.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if opened {
			b.Reset()
		}
		delay := b.NextBackOff()
		logging.Warn("USB link lost, reopening",
			zap.String("device", u.path),
			zap.Duration("retry", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session runs one open-to-hangup cycle of the device node. opened reports
// whether the node could be opened at all.
func (u *USB) session(ctx context.Context) (opened bool, err error) {
	fd, err := unix.Open(u.path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", u.path, err)
	}
	defer func() { _ = unix.Close(fd) }()

	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return true, fmt.Errorf("raw mode %s: %w", u.path, err)
		}
		defer func() { _ = term.Restore(fd, state) }()
	}

	conn := u.srv.newLink("usb:"+u.path, fdWriter{fd: fd}, nil)
	defer u.srv.dropLink(conn)

	if err := conn.Start(); err != nil {
		return true, err
	}

	buf := make([]byte, usbReadSize)
	for ctx.Err() == nil {
		ready, err := waitFD(fd, unix.POLLIN, usbPollInterval)
		if err != nil {
			return true, err
		}
		if !ready {
			continue
		}
		n, err := unix.Read(fd, buf)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return true, fmt.Errorf("read %s: %w", u.path, err)
		case n == 0:
			return true, errHangup
		}
		if err := conn.Feed(buf[:n]); err != nil {
			return true, err
		}
	}
	return true, ctx.Err()
}

// waitFD polls fd for events. It reports false on timeout and errHangup
// when the peer is gone.
func waitFD(fd int, events int16, timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return false, nil
		}
		if fds[0].Revents&events != 0 {
			return true, nil
		}
		if fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return false, errHangup
		}
		return false, nil
	}
}

// fdWriter writes the whole buffer to a non-blocking descriptor.
type fdWriter struct {
	fd int
}

func (w fdWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(w.fd, p[written:])
		switch {
		case errors.Is(err, unix.EAGAIN):
			ready, err := waitFD(w.fd, unix.POLLOUT, usbWriteTimeout)
			if err != nil {
				return written, err
			}
			if !ready {
				return written, fmt.Errorf("usb: write stalled for %dms", usbWriteTimeout)
			}
			continue
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return written, err
		}
		written += n
	}
	return written, nil
}
