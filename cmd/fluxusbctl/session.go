package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/client"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"github.com/muurk/fluxusb/internal/ui"
	"github.com/muurk/fluxusb/internal/version"
)

// Slots used for each channel kind. Any free slot would do; fixed ones keep
// captures readable.
const (
	robotSlot  = 0
	configSlot = 1
	cameraSlot = 2
)

// Global flags
var (
	linkTarget   string
	timeout      time.Duration
	insecure     bool
	plain        bool
	outputFormat string
)

func init() {
	defaultLink := os.Getenv("FLUXUSB_LINK")
	if defaultLink == "" {
		defaultLink = "tcp://127.0.0.1:7750"
	}
	rootCmd.PersistentFlags().StringVarP(&linkTarget, "link", "l", defaultLink, "Link to open: tcp://host:port, ws[s]://host:port/link or a tty path (env FLUXUSB_LINK)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip certificate verification for wss:// links")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colors and progress bars")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
}

// session is one open link with a completed handshake.
type session struct {
	// root is cancelled on SIGINT but carries no deadline.
	root    context.Context
	stream  client.Stream
	client  *client.Client
	offer   protocol.Record
	printer *ui.Printer
}

// openSession dials the link and performs the handshake. The returned
// context carries the --timeout deadline and is cancelled on SIGINT.
func openSession(cmd *cobra.Command) (*session, context.Context, context.CancelFunc, error) {
	if err := logging.InitializeFromEnv(); err != nil {
		return nil, nil, nil, err
	}

	root, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(root, timeout)
	done := func() {
		cancel()
		stop()
	}

	var tlsConfig *tls.Config
	if insecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed bench certificates
	}
	stream, err := client.Dial(ctx, linkTarget, tlsConfig)
	if err != nil {
		done()
		return nil, nil, nil, err
	}

	c := client.New(stream, client.WithProfile(map[string]any{
		"name":    "fluxusbctl",
		"version": version.Get().Version,
	}))
	offer, err := c.Hello(ctx)
	if err != nil {
		stream.Close()
		done()
		return nil, nil, nil, fmt.Errorf("handshake with %s: %w", linkTarget, err)
	}

	printer := ui.NewPrinter(nil)
	if plain {
		printer = printer.Styled(false)
	}
	return &session{root: root, stream: stream, client: c, offer: offer, printer: printer}, ctx, done, nil
}

func (s *session) Close() error {
	return s.stream.Close()
}

// openChannel binds slot to kind. The device answers with a status word
// rather than a Go error for refusals.
func (s *session) openChannel(ctx context.Context, slot int, kind channel.Kind) error {
	status, err := s.client.Open(ctx, slot, kind.String())
	if err != nil {
		return err
	}
	if status != string(channel.StatusOK) {
		return fmt.Errorf("open %s channel %d: %s", kind, slot, status)
	}
	return nil
}

// closeChannel unbinds slot. Failures are only logged by the device.
func (s *session) closeChannel(ctx context.Context, slot int) {
	_, _ = s.client.CloseChannel(ctx, slot)
}

// emit prints v as JSON when --format json is set and reports whether it did.
func emit(cmd *cobra.Command, v any) (bool, error) {
	if outputFormat != "json" {
		return false, nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return true, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return true, err
}

// detailsOf flattens a record into key/value lines sorted by key.
func detailsOf(rec protocol.Record, skip ...string) []ui.Detail {
	var out []ui.Detail
	for _, k := range slices.Sorted(maps.Keys(rec)) {
		if slices.Contains(skip, k) {
			continue
		}
		out = append(out, ui.Detail{Key: k, Value: formatValue(rec[k])})
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []byte:
		return fmt.Sprintf("%x", val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
