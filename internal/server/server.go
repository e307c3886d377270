package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/config"
	"github.com/muurk/fluxusb/internal/device"
	"github.com/muurk/fluxusb/internal/link"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/metrics"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Config holds everything a transport needs to build link connections.
type Config struct {
	Link     config.Link
	Provider device.Provider
	Factory  channel.Factory
	Metrics  *metrics.Metrics
	Capture  *Capture // nil disables frame capture

	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string
}

// Transport is one physical or bridged link driver.
type Transport interface {
	Name() string
	Serve(ctx context.Context) error
}

// Server runs transports and tracks the link connections they create.
type Server struct {
	config *Config

	mu          sync.Mutex
	activeLinks map[string]*link.Connection
}

// New creates a server.
func New(cfg *Config) (*Server, error) {
	if cfg.Provider == nil {
		return nil, errors.New("server: device provider is required")
	}
	if cfg.Factory == nil {
		return nil, errors.New("server: handler factory is required")
	}
	return &Server{
		config:      cfg,
		activeLinks: make(map[string]*link.Connection),
	}, nil
}

// Run serves every transport until ctx is cancelled or one of them fails.
// The first failure cancels the others.
func (s *Server) Run(ctx context.Context, transports ...Transport) error {
	if len(transports) == 0 {
		return errors.New("server: no transports selected")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, len(transports)+1)

	for _, t := range transports {
		wg.Add(1)
		go func(t Transport) {
			defer wg.Done()
			logging.Info("Transport starting", zap.String("transport", t.Name()))
			if err := t.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("%s: %w", t.Name(), err)
				cancel()
				return
			}
			logging.Info("Transport stopped", zap.String("transport", t.Name()))
		}(t)
	}

	if s.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.serveMetrics(ctx); err != nil {
				errChan <- fmt.Errorf("metrics: %w", err)
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errChan)
	s.closeAll()

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) serveMetrics(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", s.config.Metrics.Handler())
	r.Get(HealthPath, s.handleHealth)
	srv := &http.Server{
		Addr:              s.config.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serveHTTP(ctx, srv)
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
// Requests inherit ctx so hijacked connections can watch for shutdown.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	srv.BaseContext = func(net.Listener) context.Context { return ctx }
	errChan := make(chan error, 1)
	go func() {
		if srv.TLSConfig != nil {
			errChan <- srv.ListenAndServeTLS("", "")
			return
		}
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// HealthPath reports the registered links as JSON.
const HealthPath = "/healthz"

type healthReport struct {
	Status string   `json:"status"`
	Links  []string `json:"links"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthReport{Status: "ok", Links: s.ActiveLinks()})
}

// newLink builds a connection named name that writes to w and registers it.
// onError runs after the connection has been unregistered.
func (s *Server) newLink(name string, w io.Writer, onError func(error)) *link.Connection {
	opts := []link.Option{
		link.WithName(name),
		link.WithBufferSize(s.config.Link.BufferSize),
		link.WithInfoProvider(s.config.Provider),
		link.WithHandlerFactory(s.config.Factory),
		link.WithMetrics(s.config.Metrics),
		link.WithPaddingAllowed(s.config.Link.PaddingAllowed),
		link.WithOnError(func(err error) {
			logging.Warn("Link transport failed",
				zap.String("link", name),
				zap.Error(err),
			)
			s.untrack(name)
			if onError != nil {
				onError(err)
			}
		}),
	}
	if s.config.Capture != nil {
		opts = append(opts, link.WithFrameHook(s.config.Capture.Hook(name)))
	}

	conn := link.New(w, opts...)
	s.mu.Lock()
	s.activeLinks[name] = conn
	s.mu.Unlock()
	logging.LogConnection(name, "link_created")
	return conn
}

// dropLink closes and unregisters a connection.
func (s *Server) dropLink(conn *link.Connection) {
	if err := conn.Close(); err != nil {
		logging.Debug("Link close", zap.String("link", conn.Name()), zap.Error(err))
	}
	s.untrack(conn.Name())
}

func (s *Server) untrack(name string) {
	s.mu.Lock()
	_, ok := s.activeLinks[name]
	delete(s.activeLinks, name)
	s.mu.Unlock()
	if ok {
		logging.LogConnection(name, "link_closed")
	}
}

// closeAll forgets every tracked link. Transports close their own
// connections on the goroutine that owns them.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.activeLinks {
		logging.Debug("Link still registered at shutdown", zap.String("link", name))
		delete(s.activeLinks, name)
	}
}

// ActiveLinks returns the names of the registered links in sorted order.
func (s *Server) ActiveLinks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.activeLinks))
	for name := range s.activeLinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
