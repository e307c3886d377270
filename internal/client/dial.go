package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"golang.org/x/term"
)

// Stream is a Conn that can be closed.
type Stream interface {
	Conn
	io.Closer
}

// Dial opens the link named by target:
//
//	tcp://host:port       raw TCP bridge
//	ws://host:port/link   WebSocket bridge
//	wss://host:port/link  WebSocket bridge over TLS
//	/dev/ttyACM0          host side of the USB serial port
func Dial(ctx context.Context, target string, tlsConfig *tls.Config) (Stream, error) {
	switch {
	case strings.HasPrefix(target, "tcp://"):
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", strings.TrimPrefix(target, "tcp://"))
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", target, err)
		}
		return conn, nil
	case strings.HasPrefix(target, "ws://"), strings.HasPrefix(target, "wss://"):
		ws, err := DialWebSocket(ctx, target, tlsConfig)
		if err != nil {
			return nil, err
		}
		return ws, nil
	case strings.HasPrefix(target, "/"):
		f, err := openSerial(target)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported link target %q (want tcp://, ws://, wss:// or a device path)", target)
	}
}

// openSerial opens a tty in raw mode. The file stays non-blocking so read
// deadlines work.
func openSerial(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|noctty, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	raw, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, err
	}
	var rawErr error
	err = raw.Control(func(fd uintptr) {
		if term.IsTerminal(int(fd)) {
			_, rawErr = term.MakeRaw(int(fd))
		}
	})
	if err == nil {
		err = rawErr
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("raw mode %s: %w", path, err)
	}
	return f, nil
}
