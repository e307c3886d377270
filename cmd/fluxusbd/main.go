// Fluxusbd is the device-side daemon of the fluxusb link.
//
// It serves the multiplexed framed protocol on the USB gadget serial port
// and, optionally, on TCP and WebSocket bridges for bench testing. Channel
// handlers give hosts access to the file spool, the settings store and the
// camera bridge.
//
// Usage:
//
//	fluxusbd serve [flags]
//
// See 'fluxusbd serve --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/fluxusb/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fluxusbd",
	Short: "fluxusb device daemon",
	Long: `The device-side endpoint of the fluxusb link.

fluxusbd offers a session on every attached link, multiplexes up to eight
application channels over it and answers liveness probes at any time.

For talking to a device from a host, use the separate 'fluxusbctl' utility.`,
	Version: version.Full(),
}

// Global flags
var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/fluxusb/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fluxusbd %s\n", version.Full())
	},
}
