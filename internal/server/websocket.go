package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/muurk/fluxusb/internal/logging"
	"go.uber.org/zap"
)

const (
	// LinkPath is the WebSocket bridge endpoint.
	LinkPath = "/link"

	wsWriteTimeout = 5 * time.Second
	wsReadLimit    = 1 << 20
)

// WebSocket bridges the link over binary WebSocket messages. Message
// boundaries carry no meaning: the payloads form one byte stream.
type WebSocket struct {
	srv       *Server
	addr      string
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader
}

// NewWebSocket creates a WebSocket transport listening on addr. A non-nil
// tlsConfig serves wss://.
func NewWebSocket(srv *Server, addr string, tlsConfig *tls.Config) *WebSocket {
	return &WebSocket{
		srv:       srv,
		addr:      addr,
		tlsConfig: tlsConfig,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Name implements Transport.
func (w *WebSocket) Name() string { return "websocket" }

// Handler returns the router serving LinkPath and the health endpoint.
func (w *WebSocket) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(LinkPath, w.handleLink)
	r.Get(HealthPath, w.srv.handleHealth)
	return r
}

// Serve implements Transport.
func (w *WebSocket) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              w.addr,
		Handler:           w.Handler(),
		TLSConfig:         w.tlsConfig,
		ReadHeaderTimeout: 5 * time.Second,
	}
	scheme := "ws"
	if w.tlsConfig != nil {
		scheme = "wss"
		logging.Info("Bridge TLS enabled", tlsFields(w.tlsConfig)...)
	}
	logging.Info("WebSocket bridge listening",
		zap.String("url", scheme+"://"+w.addr+LinkPath),
	)
	return serveHTTP(ctx, srv)
}

func (w *WebSocket) handleLink(rw http.ResponseWriter, r *http.Request) {
	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	defer func() { _ = ws.Close() }()
	ws.SetReadLimit(wsReadLimit)

	stop := context.AfterFunc(r.Context(), func() { _ = ws.Close() })
	defer stop()

	conn := w.srv.newLink("ws:"+r.RemoteAddr, &wsWriter{ws: ws}, func(error) { _ = ws.Close() })
	defer w.srv.dropLink(conn)

	if err := conn.Start(); err != nil {
		return
	}

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(r.Context().Err(), context.Canceled) {
				logging.Info("WebSocket read ended",
					zap.String("link", conn.Name()),
					zap.Error(err),
				)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			logging.Debug("Ignoring non-binary WebSocket message",
				zap.String("link", conn.Name()),
				zap.Int("type", mt),
			)
			continue
		}
		if err := conn.Feed(data); err != nil {
			return
		}
	}
}

// wsWriter sends each write as one binary message. Only the goroutine
// driving the connection writes.
type wsWriter struct {
	ws *websocket.Conn
}

func (w *wsWriter) Write(p []byte) (int, error) {
	_ = w.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := w.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
