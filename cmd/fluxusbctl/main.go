// Fluxusbctl talks to a fluxusb device from the host side.
//
// It performs the handshake, probes liveness, reads and writes device
// settings and moves files to and from the device spool. Any link the
// daemon serves can be used: the USB serial port or the TCP and WebSocket
// bridges.
//
// Usage:
//
//	fluxusbctl [command] [flags]
//
// See 'fluxusbctl --help' for available commands.
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
	Use:   "fluxusbctl",
	Short: "fluxusb host utility",
	Long: `A host-side utility for fluxusb devices.

Every command opens the link, completes a handshake and runs one
operation. Set FLUXUSB_LOG_LEVEL=debug to see every frame.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fluxusbctl %s\n", version.Full())
	},
}
