//go:build linux

package server

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/muurk/fluxusb/internal/client"
	"golang.org/x/sys/unix"
)

// openPTY returns the master side of a new pseudo terminal and the path of
// its slave, which stands in for the gadget tty.
func openPTY(t *testing.T) (*os.File, string) {
	t.Helper()
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		t.Skipf("no pseudo terminals: %v", err)
	}
	t.Cleanup(func() { _ = master.Close() })

	raw, err := master.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn() error = %v", err)
	}
	var n int
	var ctlErr error
	err = raw.Control(func(fd uintptr) {
		if ctlErr = unix.IoctlSetPointerInt(int(fd), unix.TIOCSPTLCK, 0); ctlErr != nil {
			return
		}
		n, ctlErr = unix.IoctlGetInt(int(fd), unix.TIOCGPTN)
		if ctlErr != nil {
			return
		}
		var tio *unix.Termios
		if tio, ctlErr = unix.IoctlGetTermios(int(fd), unix.TCGETS); ctlErr != nil {
			return
		}
		// Raw on the host side too, so frame bytes pass untouched.
		tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
		tio.Oflag &^= unix.OPOST
		tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
		ctlErr = unix.IoctlSetTermios(int(fd), unix.TCSETS, tio)
	})
	if err != nil || ctlErr != nil {
		t.Skipf("pty setup failed: %v %v", err, ctlErr)
	}
	return master, fmt.Sprintf("/dev/pts/%d", n)
}

func TestUSB_Link(t *testing.T) {
	master, slave := openPTY(t)
	srv := newTestServer(t)
	usb := NewUSB(srv, slave)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, usb) }()
	defer func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	}()

	tctx := testContext(t)
	c := client.New(master)
	offer, err := c.Hello(tctx)
	if err != nil {
		t.Fatalf("Hello() error = %v", err)
	}
	if model, _ := offer.String("model"); model != "delta" {
		t.Errorf("offer model = %q, want delta", model)
	}

	status, _, err := c.Ping(tctx, 0x01)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if len(status) == 0 {
		t.Error("empty ping status")
	}
	if links := srv.ActiveLinks(); len(links) != 1 || links[0] != "usb:"+slave {
		t.Errorf("ActiveLinks() = %v", links)
	}
}

func TestUSB_MissingDeviceRetries(t *testing.T) {
	srv := newTestServer(t)
	usb := NewUSB(srv, "/nonexistent/ttyGS9")
	usb.retry = 5 * time.Millisecond
	usb.max = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := usb.Serve(ctx); err != nil {
		t.Errorf("Serve() error = %v, want nil after cancel", err)
	}
}
