// Package metrics exposes Prometheus collectors for the link engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "fluxusb").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the registry collectors are registered with.
	// Default: a fresh prometheus.NewRegistry()
	Registry *prometheus.Registry
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the engine collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	bytesReceived   prometheus.Counter
	noiseDiscarded  prometheus.Counter
	resets          *prometheus.CounterVec
	handshakes      prometheus.Counter
	controlRequests *prometheus.CounterVec
	pings           prometheus.Counter
	openChannels    prometheus.Gauge
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	cfg := Config{Namespace: "fluxusb"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		registry: cfg.Registry,

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_received_total",
			Help:        "Frames decoded from the link, by channel class",
			ConstLabels: cfg.ConstLabels,
		}, []string{"class"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_sent_total",
			Help:        "Frames written to the link, by channel class",
			ConstLabels: cfg.ConstLabels,
		}, []string{"class"}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "bytes_received_total",
			Help:        "Raw bytes read from the link",
			ConstLabels: cfg.ConstLabels,
		}),

		noiseDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "noise_bytes_discarded_total",
			Help:        "Bytes dropped while resynchronising before a handshake",
			ConstLabels: cfg.ConstLabels,
		}),

		resets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "session_resets_total",
			Help:        "Session resets by cause",
			ConstLabels: cfg.ConstLabels,
		}, []string{"cause"}),

		handshakes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "handshakes_total",
			Help:        "Completed handshakes",
			ConstLabels: cfg.ConstLabels,
		}),

		controlRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "control_requests_total",
			Help:        "Channel open/close requests by action and status",
			ConstLabels: cfg.ConstLabels,
		}, []string{"action", "status"}),

		pings: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "pings_total",
			Help:        "Liveness probes answered",
			ConstLabels: cfg.ConstLabels,
		}),

		openChannels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "open_channels",
			Help:        "Application channels currently open across all links",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// FrameReceived counts one decoded frame.
func (m *Metrics) FrameReceived(class string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(class).Inc()
}

// FrameSent counts one written frame.
func (m *Metrics) FrameSent(class string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(class).Inc()
}

// BytesReceived counts raw link input.
func (m *Metrics) BytesReceived(n int) {
	if m == nil {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// NoiseDiscarded counts bytes dropped during resynchronisation.
func (m *Metrics) NoiseDiscarded(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.noiseDiscarded.Add(float64(n))
}

// Reset counts one session reset.
func (m *Metrics) Reset(cause string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(cause).Inc()
}

// Handshake counts one completed handshake.
func (m *Metrics) Handshake() {
	if m == nil {
		return
	}
	m.handshakes.Inc()
}

// ControlRequest counts one open/close request. Actions other than open
// and close share the "other" label.
func (m *Metrics) ControlRequest(action, status string) {
	if m == nil {
		return
	}
	m.controlRequests.WithLabelValues(actionLabel(action), status).Inc()
}

func actionLabel(action string) string {
	switch action {
	case "open", "close":
		return action
	default:
		return "other"
	}
}

// Ping counts one answered probe.
func (m *Metrics) Ping() {
	if m == nil {
		return
	}
	m.pings.Inc()
}

// ChannelsOpened adjusts the open channel gauge by delta.
func (m *Metrics) ChannelsOpened(delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.openChannels.Add(float64(delta))
}
