package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/client"
	"github.com/muurk/fluxusb/internal/protocol"
	"github.com/muurk/fluxusb/internal/ui"
)

func init() {
	rootCmd.AddCommand(helloCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(snapshotCmd)
}

var helloCmd = &cobra.Command{
	Use:   "hello",
	Short: "Complete a handshake and show the device record",
	Example: `  fluxusbctl hello --link tcp://127.0.0.1:7750
  fluxusbctl hello --link /dev/ttyACM0 --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()
		defer s.Close()

		if ok, err := emit(cmd, map[string]any{
			"offer":          s.offer,
			"session":        s.client.Session(),
			"protocol_level": s.client.ProtocolLevel(),
		}); ok {
			return err
		}
		s.printer.PrintHeader(ui.NewHeader("Hello", linkTarget))
		r := ui.NewSuccessResult("Handshake complete",
			ui.Detail{Key: "Session", Value: fmt.Sprint(s.client.Session())},
			ui.Detail{Key: "Protocol level", Value: fmt.Sprint(s.client.ProtocolLevel())},
		)
		r.Details = append(r.Details, detailsOf(s.offer, "session")...)
		s.printer.PrintResult(r)
		return nil
	},
}

var pingMarker uint8

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Probe liveness and show the status snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()
		defer s.Close()

		status, rtt, err := s.client.Ping(ctx, pingMarker)
		if err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		if ok, err := emit(cmd, map[string]any{"status": string(status), "rtt_ms": rtt.Milliseconds()}); ok {
			return err
		}
		s.printer.PrintHeader(ui.NewHeader("Ping", linkTarget))
		s.printer.PrintResult(ui.NewSuccessResult("Pong",
			ui.Detail{Key: "Status", Value: string(status)},
			ui.Detail{Key: "RTT", Value: rtt.String()},
		))
		return nil
	},
}

func init() {
	pingCmd.Flags().Uint8Var(&pingMarker, "marker", 0, "Marker byte echoed in the pong")
}

var (
	watchInterval time.Duration
	watchCount    int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Ping the device repeatedly and show the results",
	Long: `Ping the device on a fixed interval over one session.

On a terminal this shows a live view (p probes now, space pauses, q quits).
Otherwise one line is printed per probe. --timeout bounds the handshake and
each probe, not the whole run. The command fails if any probe failed.`,
	Example: `  fluxusbctl watch --link /dev/ttyACM0
  fluxusbctl watch --interval 200ms --count 50 --plain`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()
		defer s.Close()

		var marker byte
		probe := func(ctx context.Context) (string, time.Duration, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			marker++
			status, rtt, err := s.client.Ping(ctx, marker)
			return string(status), rtt, err
		}
		failed, err := s.printer.RunMonitor(s.root, linkTarget, watchInterval, watchCount, probe)
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d probes failed", failed)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "Time between probes")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Stop after this many probes (0 runs until interrupted)")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write device settings",
}

// withSettings opens the config channel and runs fn against it.
func withSettings(cmd *cobra.Command, fn func(ctx context.Context, s *session, st *client.Settings) error) error {
	s, ctx, done, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer done()
	defer s.Close()

	if err := s.openChannel(ctx, configSlot, channel.KindConfig); err != nil {
		return err
	}
	if err := fn(ctx, s, client.NewSettings(s.client, configSlot)); err != nil {
		return err
	}
	s.closeChannel(ctx, configSlot)
	return nil
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Read one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(cmd, func(ctx context.Context, s *session, st *client.Settings) error {
			value, found, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("setting %q not found", args[0])
			}
			if ok, err := emit(cmd, map[string]any{"key": args[0], "value": value}); ok {
				return err
			}
			s.printer.PrintResult(ui.NewSuccessResult("Setting", ui.Detail{Key: args[0], Value: value}))
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Write one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(cmd, func(ctx context.Context, s *session, st *client.Settings) error {
			if err := st.Set(ctx, args[0], args[1]); err != nil {
				return err
			}
			if ok, err := emit(cmd, map[string]any{"key": args[0], "value": args[1]}); ok {
				return err
			}
			s.printer.PrintResult(ui.NewSuccessResult("Saved", ui.Detail{Key: args[0], Value: args[1]}))
			return nil
		})
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Remove one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(cmd, func(ctx context.Context, s *session, st *client.Settings) error {
			if err := st.Delete(ctx, args[0]); err != nil {
				return err
			}
			if ok, err := emit(cmd, map[string]any{"key": args[0], "deleted": true}); ok {
				return err
			}
			s.printer.PrintResult(ui.NewSuccessResult("Deleted", ui.Detail{Key: "Key", Value: args[0]}))
			return nil
		})
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List settings with their values",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(cmd, func(ctx context.Context, s *session, st *client.Settings) error {
			keys, err := st.Keys(ctx)
			if err != nil {
				return err
			}
			snap, err := st.Snapshot(ctx, keys)
			if err != nil {
				return err
			}
			if ok, err := emit(cmd, snap.Values); ok {
				return err
			}
			if len(keys) == 0 {
				s.printer.PrintResult(ui.NewWarningResult("No settings stored"))
				return nil
			}
			r := ui.NewSuccessResult(fmt.Sprintf("%d settings", len(keys)))
			for _, k := range keys {
				r.AddDetail(k, snap.Values[k])
			}
			s.printer.PrintResult(r)
			return nil
		})
	},
}

var configApplyCmd = &cobra.Command{
	Use:   "apply FILE",
	Short: "Write several settings from a YAML file, rolling back on failure",
	Long: `Write every key of a flat YAML mapping to the device.

The current values are saved first. Each value is read back after writing;
if any write fails or a value does not match, the saved state is restored.`,
	Example: `  # settings.yaml:
  #   nozzle: "0.4"
  #   bed: "60"
  fluxusbctl config apply settings.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := readSettingsFile(args[0])
		if err != nil {
			return err
		}
		return withSettings(cmd, func(ctx context.Context, s *session, st *client.Settings) error {
			res, err := st.Apply(ctx, values)
			if ok, jerr := emit(cmd, res); ok {
				return errors.Join(err, jerr)
			}
			if err != nil {
				r := ui.NewFailureResult("Settings not applied", err, res.Mismatches...)
				r.AddDetail("Rolled back", fmt.Sprint(res.RolledBack))
				s.printer.PrintResult(r)
				return err
			}
			r := ui.NewSuccessResult(fmt.Sprintf("Applied %d settings", len(res.Applied)))
			for _, k := range res.Applied {
				r.AddDetail(k, values[k])
			}
			s.printer.PrintResult(r)
			return nil
		})
	},
}

// readSettingsFile loads a flat key/value YAML mapping. Scalars of any type
// are stored as their text.
func readSettingsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("parse %s: %s is not a scalar", path, k)
		case nil:
			values[k] = ""
		default:
			values[k] = fmt.Sprint(v)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s has no settings", path)
	}
	return values, nil
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configDeleteCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configApplyCmd)
}

var putCmd = &cobra.Command{
	Use:   "put LOCAL [REMOTE]",
	Short: "Upload a file to the device spool",
	Args:  cobra.RangeArgs(1, 2),
	Example: `  fluxusbctl put part.gcode
  fluxusbctl put build/out.gcode job-17.gcode --link ws://10.0.0.5:7751/link`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		remote := remoteName(args)

		s, ctx, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()
		defer s.Close()

		if _, err := s.request(ctx, robotSlot, channel.KindRobot, map[string]any{
			"cmd":  "upload",
			"name": remote,
			"size": len(data),
		}); err != nil {
			return err
		}

		label := fmt.Sprintf("Uploading %s (%s)", remote, ui.FormatBytes(int64(len(data))))
		err = s.printer.RunTransfer(ctx, label, int64(len(data)), func(ctx context.Context, report ui.ReportFunc) error {
			return s.client.Upload(ctx, robotSlot, data, func(sent, _ int) { report(int64(sent)) })
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", remote, err)
		}
		final, err := s.reply(ctx, robotSlot)
		if err != nil {
			return err
		}
		s.closeChannel(ctx, robotSlot)

		if ok, err := emit(cmd, final); ok {
			return err
		}
		s.printer.PrintResult(ui.NewSuccessResult("Uploaded",
			ui.Detail{Key: "Name", Value: remote},
			ui.Detail{Key: "Size", Value: ui.FormatBytes(int64(len(data)))},
		))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get REMOTE [LOCAL]",
	Short: "Download a file from the device spool",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, local := args[0], filepath.Base(args[0])
		if len(args) == 2 {
			local = args[1]
		}

		s, ctx, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()
		defer s.Close()

		rec, err := s.request(ctx, robotSlot, channel.KindRobot, map[string]any{"cmd": "download", "name": remote})
		if err != nil {
			return err
		}
		size, _ := rec.Int("size")
		if err := s.receive(ctx, robotSlot, "Downloading "+remote, size, local); err != nil {
			return err
		}
		s.closeChannel(ctx, robotSlot)

		if ok, err := emit(cmd, map[string]any{"name": remote, "size": size, "path": local}); ok {
			return err
		}
		s.printer.PrintResult(ui.NewSuccessResult("Downloaded",
			ui.Detail{Key: "Name", Value: remote},
			ui.Detail{Key: "Size", Value: ui.FormatBytes(size)},
			ui.Detail{Key: "Saved to", Value: local},
		))
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List files in the device spool",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()
		defer s.Close()

		rec, err := s.request(ctx, robotSlot, channel.KindRobot, map[string]any{"cmd": "list"})
		if err != nil {
			return err
		}
		s.closeChannel(ctx, robotSlot)

		if ok, err := emit(cmd, rec); ok {
			return err
		}
		files, _ := rec["files"].([]any)
		if len(files) == 0 {
			s.printer.PrintResult(ui.NewWarningResult("Spool is empty"))
			return nil
		}
		for _, f := range files {
			s.printer.Println(fmt.Sprint(f))
		}
		return nil
	},
}

var assumeYes bool

var rmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete a file from the device spool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		s, ctx, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()
		defer s.Close()

		if !assumeYes && !s.printer.Confirm(cmd.InOrStdin(), "Delete "+name, []string{
			"The file is removed from the device spool.",
			"This cannot be undone.",
		}, name) {
			return nil
		}
		if _, err := s.request(ctx, robotSlot, channel.KindRobot, map[string]any{"cmd": "delete", "name": name}); err != nil {
			return err
		}
		s.closeChannel(ctx, robotSlot)
		s.printer.PrintResult(ui.NewSuccessResult("Deleted", ui.Detail{Key: "Name", Value: name}))
		return nil
	},
}

func init() {
	rmCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot OUT",
	Short: "Capture a camera frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, done, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer done()
		defer s.Close()

		rec, err := s.request(ctx, cameraSlot, channel.KindCamera, map[string]any{"cmd": "snapshot"})
		if err != nil {
			return err
		}
		size, _ := rec.Int("size")
		if err := s.receive(ctx, cameraSlot, "Receiving snapshot", size, args[0]); err != nil {
			return err
		}
		s.closeChannel(ctx, cameraSlot)

		s.printer.PrintResult(ui.NewSuccessResult("Snapshot saved",
			ui.Detail{Key: "Size", Value: ui.FormatBytes(size)},
			ui.Detail{Key: "Saved to", Value: args[0]},
		))
		return nil
	},
}

// request opens slot as kind and runs one command on it. Error replies
// become client.ErrRejected.
func (s *session) request(ctx context.Context, slot int, kind channel.Kind, req map[string]any) (protocol.Record, error) {
	if err := s.openChannel(ctx, slot, kind); err != nil {
		return nil, err
	}
	rec, err := s.client.Request(ctx, byte(slot), req)
	if err != nil {
		return nil, err
	}
	if err := client.Check(rec); err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, req["cmd"], err)
	}
	return rec, nil
}

func (s *session) reply(ctx context.Context, slot int) (protocol.Record, error) {
	rec, err := s.client.Reply(ctx, byte(slot))
	if err != nil {
		return nil, err
	}
	return rec, client.Check(rec)
}

// receive downloads size bytes from slot into path. A partial file is
// removed on failure.
func (s *session) receive(ctx context.Context, slot int, label string, size int64, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = s.printer.RunTransfer(ctx, label, size, func(ctx context.Context, report ui.ReportFunc) error {
		return s.client.Download(ctx, byte(slot), size, f, func(received, _ int64) { report(received) })
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%s: %w", strings.ToLower(label), err)
	}
	return nil
}

// remoteName picks the spool name for put: the second argument, or the
// local file's base name.
func remoteName(args []string) string {
	if len(args) > 1 && args[1] != "" {
		return args[1]
	}
	return filepath.Base(args[0])
}
