package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/fluxusb/internal/config"
	"github.com/muurk/fluxusb/internal/device"
	"github.com/muurk/fluxusb/internal/handlers"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/metrics"
	"github.com/muurk/fluxusb/internal/server"
	"github.com/muurk/fluxusb/internal/ui"
	"github.com/muurk/fluxusb/internal/version"
)

// Serve command flags
var (
	transports  []string
	captureDir  string
	metricsAddr string
	usbDevice   string
	tcpAddr     string
	wsAddr      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the link on the selected transports",
	Long: `Serve the fluxusb link until interrupted.

Transports:
  usb  the USB gadget serial tty (link.usb_device)
  tcp  a raw TCP bridge (link.tcp_addr)
  ws   a WebSocket bridge on /link (link.ws_addr, wss:// when a certificate is configured)

Every attached host gets its own session. SIGINT or SIGTERM closes all
links and exits.`,
	Example: `  # Serve the gadget port with the default config
  fluxusbd serve

  # Bench setup: TCP and WebSocket bridges with debug logging
  fluxusbd serve --transport tcp,ws --log-level debug

  # Capture every frame for protocol analysis
  fluxusbd serve --capture-dir ./captures

  # Expose Prometheus metrics
  fluxusbd serve --metrics-addr 127.0.0.1:9750`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringSliceVarP(&transports, "transport", "t", []string{"usb"}, "Transports to serve (usb, tcp, ws)")
	serveCmd.Flags().StringVar(&captureDir, "capture-dir", "", "Directory for JSONL frame captures (overrides link.capture_dir)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on this address (overrides metrics.addr)")
	serveCmd.Flags().StringVar(&usbDevice, "usb-device", "", "Gadget serial tty (overrides link.usb_device)")
	serveCmd.Flags().StringVar(&tcpAddr, "tcp-addr", "", "TCP bridge address (overrides link.tcp_addr)")
	serveCmd.Flags().StringVar(&wsAddr, "ws-addr", "", "WebSocket bridge address (overrides link.ws_addr)")
}

// loadConfig reads the config file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logging.Configure(logging.Options{Level: level, Format: cfg.LogFormat, File: cfg.LogFile}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Sync()

	if usbDevice != "" {
		cfg.Link.USBDevice = usbDevice
	}
	if tcpAddr != "" {
		cfg.Link.TCPAddr = tcpAddr
	}
	if wsAddr != "" {
		cfg.Link.WSAddr = wsAddr
	}
	if captureDir != "" {
		cfg.Link.CaptureDir = captureDir
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if cfg.Device.Version == "" {
		cfg.Device.Version = version.Get().Version
	}

	store, err := handlers.OpenStore(cfg.Handlers.ConfigStore)
	if err != nil {
		return fmt.Errorf("failed to open config store: %w", err)
	}

	var capture *server.Capture
	if cfg.Link.CaptureDir != "" {
		if capture, err = server.NewCapture(cfg.Link.CaptureDir); err != nil {
			return err
		}
		defer capture.Close()
	}

	srv, err := server.New(&server.Config{
		Link:        cfg.Link,
		Provider:    device.NewStatic(cfg.Device),
		Factory:     handlers.Factory(cfg.Handlers, store),
		Metrics:     metrics.New(metrics.WithConstLabels(map[string]string{"serial": cfg.Device.Serial})),
		Capture:     capture,
		MetricsAddr: cfg.Metrics.Addr,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	selected, err := buildTransports(srv, cfg.Link, transports)
	if err != nil {
		return err
	}

	logging.Info("Starting fluxusbd",
		zap.String("version", version.Full()),
		zap.Strings("transports", transports),
		zap.String("serial", cfg.Device.Serial),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, selected...)
}

func buildTransports(srv *server.Server, link config.Link, names []string) ([]server.Transport, error) {
	var out []server.Transport
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "usb":
			out = append(out, server.NewUSB(srv, link.USBDevice))
		case "tcp":
			out = append(out, server.NewTCP(srv, link.TCPAddr, link.Multicore))
		case "ws", "websocket":
			ws, err := newWebSocket(srv, link)
			if err != nil {
				return nil, err
			}
			out = append(out, ws)
		default:
			return nil, fmt.Errorf("unknown transport %q (expected usb, tcp or ws)", name)
		}
	}
	return out, nil
}

func newWebSocket(srv *server.Server, link config.Link) (*server.WebSocket, error) {
	if link.WSCertFile == "" {
		return server.NewWebSocket(srv, link.WSAddr, nil), nil
	}
	tlsConfig, err := server.NewTLSConfig(link.WSCertFile, link.WSKeyFile)
	if err != nil {
		return nil, err
	}
	return server.NewWebSocket(srv, link.WSAddr, tlsConfig), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the daemon config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var forceInit bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with every default filled in",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.GetConfigPath(); err != nil {
				return err
			}
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

var captureJSON bool

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Work with frame capture files",
}

var captureAnalyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Summarize capture files and replay every frame through the codec",
	Long: `Summarize JSONL capture files written by 'serve --capture-dir'.

Every frame is re-encoded and decoded strictly. Frames that do not survive
the round trip are reported as failures; markers that belong to the other
side of the link are reported as anomalies. The command fails if any file
has failures.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCaptureAnalyze,
}

func init() {
	captureAnalyzeCmd.Flags().BoolVar(&captureJSON, "json", false, "Print the summary as JSON")
	captureCmd.AddCommand(captureAnalyzeCmd)
}

func runCaptureAnalyze(cmd *cobra.Command, args []string) error {
	printer := ui.NewPrinter(nil)
	failed := 0
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		records, err := server.ReadCapture(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		stats := server.AnalyzeCapture(records)
		failed += len(stats.Failures)

		if captureJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"file": path, "stats": stats}); err != nil {
				return err
			}
			continue
		}
		printer.PrintHeader(ui.NewHeader("Capture", path))
		printer.PrintResult(captureResult(stats))
	}
	if failed > 0 {
		return fmt.Errorf("%d frames failed to replay", failed)
	}
	return nil
}

func captureResult(stats server.CaptureStats) *ui.Result {
	details := []ui.Detail{
		{Key: "Frames", Value: fmt.Sprint(stats.Frames)},
		{Key: "Bytes", Value: ui.FormatBytes(int64(stats.Bytes))},
		{Key: "Links", Value: strings.Join(stats.Links, ", ")},
		{Key: "Offers", Value: fmt.Sprint(stats.Offers)},
	}
	if stats.Frames > 0 {
		details = append(details, ui.Detail{Key: "Span", Value: stats.Last.Sub(stats.First).String()})
	}
	for _, name := range slices.Sorted(maps.Keys(stats.Channels)) {
		details = append(details, ui.Detail{Key: name, Value: fmt.Sprint(stats.Channels[name])})
	}

	var r *ui.Result
	switch {
	case len(stats.Failures) > 0:
		var lines []string
		for _, f := range stats.Failures {
			lines = append(lines, fmt.Sprintf("#%d %s: %s", f.Seq, f.Link, f.Message))
		}
		r = ui.NewFailureResult("Replay failures", fmt.Errorf("%d of %d frames", len(stats.Failures), stats.Frames), lines...)
		r.Details = details
	case len(stats.Anomalies) > 0:
		r = ui.NewWarningResult("Marker anomalies", details...)
		for _, a := range stats.Anomalies {
			r.AddDetail(fmt.Sprintf("#%d", a.Seq), a.Message)
		}
	default:
		r = ui.NewSuccessResult("Capture is consistent", details...)
	}
	return r
}
