package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/muurk/fluxusb/internal/config"
	"github.com/muurk/fluxusb/internal/device"
	"github.com/muurk/fluxusb/internal/handlers"
	"github.com/muurk/fluxusb/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, mutate ...func(*Config)) *Server {
	t.Helper()
	store, err := handlers.OpenStore("")
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	cfg := &Config{
		Link:     config.Default().Link,
		Provider: device.NewStatic(device.Identity{Name: "bench", Serial: "FX42", Model: "delta"}),
		Factory: handlers.Factory(config.Handlers{
			SpoolDir:     t.TempDir(),
			CameraSocket: "/nonexistent/camera.sock",
		}, store),
		Metrics: metrics.New(metrics.WithRegistry(prometheus.NewRegistry())),
	}
	for _, m := range mutate {
		m(cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type blockingTransport struct{ name string }

func (b blockingTransport) Name() string { return b.name }
func (b blockingTransport) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type failingTransport struct{ err error }

func (f failingTransport) Name() string                { return "broken" }
func (f failingTransport) Serve(context.Context) error { return f.err }

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"no provider", &Config{Factory: handlers.Factory(config.Handlers{}, nil)}},
		{"no factory", &Config{Provider: device.NewStatic(device.Identity{Serial: "x"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() succeeded, want error")
			}
		})
	}
}

func TestRun_NoTransports(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Run(testContext(t)); err == nil {
		t.Error("Run() without transports succeeded")
	}
}

func TestRun_FailureStopsOthers(t *testing.T) {
	srv := newTestServer(t)
	boom := errors.New("device node missing")

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(testContext(t), blockingTransport{"idle"}, failingTransport{boom})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Run() error = %v, want %v", err, boom)
		}
		if !strings.Contains(err.Error(), "broken") {
			t.Errorf("Run() error %q does not name the transport", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after a transport failed")
	}
}

func TestRun_CancelIsClean(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, blockingTransport{"a"}, blockingTransport{"b"}) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_MetricsEndpoint(t *testing.T) {
	addr := freeAddr(t)
	srv := newTestServer(t, func(c *Config) { c.MetricsAddr = addr })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, blockingTransport{"idle"}) }()
	defer func() {
		cancel()
		<-done
	}()

	srv.config.Metrics.Handshake()

	var body string
	eventually(t, "metrics endpoint", func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	})
	if !strings.Contains(body, "fluxusb_handshakes_total 1") {
		t.Errorf("metrics body missing handshake counter:\n%s", body)
	}
}

func TestServer_LinkTracking(t *testing.T) {
	srv := newTestServer(t)
	var sink strings.Builder
	conn := srv.newLink("test:1", &sink, nil)

	if got := srv.ActiveLinks(); len(got) != 1 || got[0] != "test:1" {
		t.Fatalf("ActiveLinks() = %v", got)
	}
	srv.dropLink(conn)
	if got := srv.ActiveLinks(); len(got) != 0 {
		t.Errorf("ActiveLinks() after drop = %v", got)
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("cable pulled") }

func TestServer_TransportErrorUntracks(t *testing.T) {
	srv := newTestServer(t)
	var got error
	conn := srv.newLink("test:broken", brokenWriter{}, func(err error) { got = err })

	if err := conn.Start(); err == nil {
		t.Fatal("Start() on a broken writer succeeded")
	}
	if got == nil {
		t.Error("onError was not called")
	}
	if links := srv.ActiveLinks(); len(links) != 0 {
		t.Errorf("ActiveLinks() = %v after transport error", links)
	}
}
