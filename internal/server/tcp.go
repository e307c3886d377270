package server

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/muurk/fluxusb/internal/link"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

// TCP bridges the link over raw TCP using gnet event loops. Each accepted
// connection carries one link; callbacks for a connection always run on
// the same event loop, so a link never sees concurrent calls.
type TCP struct {
	gnet.BuiltinEventEngine

	srv       *Server
	addr      string
	multicore bool

	engine gnet.Engine
	booted chan struct{}
	active atomic.Int64
}

// NewTCP creates a TCP transport listening on addr.
func NewTCP(srv *Server, addr string, multicore bool) *TCP {
	return &TCP{
		srv:       srv,
		addr:      addr,
		multicore: multicore,
		booted:    make(chan struct{}),
	}
}

// Name implements Transport.
func (t *TCP) Name() string { return "tcp" }

// Active returns the number of open TCP links.
func (t *TCP) Active() int64 { return t.active.Load() }

// Serve implements Transport.
func (t *TCP) Serve(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- gnet.Run(t, "tcp://"+t.addr,
			gnet.WithMulticore(t.multicore),
			gnet.WithReusePort(false),
			gnet.WithTCPNoDelay(gnet.TCPNoDelay),
			gnet.WithTCPKeepAlive(time.Minute),
			gnet.WithLogger(logging.GetLogger().Sugar()),
		)
	}()

	select {
	case err := <-errChan:
		return err
	case <-t.booted:
	}

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := t.engine.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logging.Warn("gnet engine stop failed", zap.Error(err))
	}
	return <-errChan
}

// OnBoot stores the engine so Serve can stop it.
func (t *TCP) OnBoot(eng gnet.Engine) gnet.Action {
	t.engine = eng
	logging.Info("TCP bridge listening",
		zap.String("addr", t.addr),
		zap.Bool("multicore", t.multicore),
	)
	close(t.booted)
	return gnet.None
}

// OnOpen creates the link and returns its reset sequence as the first
// bytes on the wire.
func (t *TCP) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	w := &gnetWriter{conn: c, pending: new(bytes.Buffer)}
	conn := t.srv.newLink("tcp:"+c.RemoteAddr().String(), w, nil)
	c.SetContext(conn)
	t.active.Add(1)

	err := conn.Start()
	out := w.flush()
	if err != nil {
		return out, gnet.Close
	}
	return out, gnet.None
}

// OnTraffic feeds everything readable into the link.
func (t *TCP) OnTraffic(c gnet.Conn) gnet.Action {
	conn, ok := c.Context().(*link.Connection)
	if !ok {
		return gnet.Close
	}
	buf, err := c.Next(-1)
	if err != nil {
		logging.Warn("TCP read failed", zap.String("link", conn.Name()), zap.Error(err))
		return gnet.Close
	}
	if err := conn.Feed(buf); err != nil {
		return gnet.Close
	}
	return gnet.None
}

// OnClose releases the link's channels.
func (t *TCP) OnClose(c gnet.Conn, err error) gnet.Action {
	conn, ok := c.Context().(*link.Connection)
	if !ok {
		return gnet.None
	}
	if err != nil {
		logging.Debug("TCP connection closed with error",
			zap.String("link", conn.Name()),
			zap.Error(err),
		)
	}
	c.SetContext(nil)
	t.srv.dropLink(conn)
	t.active.Add(-1)
	return gnet.None
}

// gnetWriter writes into the gnet outbound buffer from the event loop.
// While pending is set, writes are collected so OnOpen can return them.
type gnetWriter struct {
	conn    gnet.Conn
	pending *bytes.Buffer
}

func (w *gnetWriter) Write(p []byte) (int, error) {
	if w.pending != nil {
		return w.pending.Write(p)
	}
	return w.conn.Write(p)
}

func (w *gnetWriter) flush() []byte {
	out := w.pending.Bytes()
	w.pending = nil
	return out
}
