// Package logging provides structured logging for the FLUX USB daemon.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the link engine. It provides both general logging
// functions and specialized functions for protocol-specific logging needs.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (frame hex dumps, filler frames, pings)
//   - Info: Normal operations (link open, handshake, channel open/close)
//   - Warn: Recoverable issues (ignored frames, session resets)
//   - Error: Fatal issues (startup failures, transport errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Handshake complete",
//	    zap.String("link", "usb0"),
//	    zap.Uint16("session", 4711),
//	    zap.Bool("padding", true),
//	)
//
// # Specialized Logging
//
// Link Logging:
//
//	logging.LogConnection(link, "link_open")
//	logging.LogConnection(link, "link_closed")
//
// Frame Logging (debug level only):
//
//	logging.LogFrame(link, "rx", frame.Channel, frame.Marker, frame.Payload)
//
// Session Resets:
//
//	logging.LogReset(link, "fatal framing error", oldSession, newSession)
//
// # Configuration
//
// Initialize logging at daemon startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given, FLUXUSB_LOG_LEVEL is consulted; when that is unset
// too, logging is silent.
//
// The daemon uses Configure to pick the encoding and sink from its config file:
//
//	logging.Configure(logging.Options{Level: "info", Format: "json", File: "/var/log/fluxusbd.log"})
//
// File output is rotated by size with lumberjack.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
