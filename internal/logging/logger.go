package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "FLUXUSB_LOG_LEVEL"

// SetLogger replaces the global logger. Passing nil restores the silent logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// Options configures the global logger.
type Options struct {
	// Level is debug, info, warn or error. Empty consults FLUXUSB_LOG_LEVEL;
	// when that is unset too, logging is silent.
	Level string
	// Format is console (default) or json.
	Format string
	// File, when set, receives the log instead of stderr and is rotated.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Initialize creates a new console logger on stderr with the specified
// level. See Options.Level for the empty level.
func Initialize(level string) error {
	return Configure(Options{Level: level})
}

// Configure replaces the global logger according to opts.
func Configure(opts Options) error {
	level := opts.Level
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		// An explicit but unknown level still turns logging on.
		zapLevel = zapcore.InfoLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if opts.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
		})
	}

	var enc zapcore.Encoder
	switch opts.Format {
	case "", "console":
		if opts.File == "" {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return fmt.Errorf("failed to initialize logger: unknown format %q", opts.Format)
	}

	logger = zap.New(zapcore.NewCore(enc, sink, zap.NewAtomicLevelAt(zapLevel)),
		zap.AddCaller(),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	)
	return nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// InitializeFromEnv initializes the logger from the FLUXUSB_LOG_LEVEL
// environment variable. This is the recommended way to initialize logging
// for CLI commands that want silent mode by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		// This ensures no unexpected log output in CLI commands
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogConnection logs a link lifecycle event
func LogConnection(link string, event string) {
	Info("Link event",
		zap.String("link", link),
		zap.String("event", event),
	)
}

// LogFrame logs one frame crossing the link. Payload bytes are only dumped
// when debug logging is enabled.
func LogFrame(link string, direction string, channel byte, marker byte, payload []byte) {
	core := GetLogger().Core()
	if !core.Enabled(zapcore.DebugLevel) {
		return
	}
	Debug("Frame",
		zap.String("link", link),
		zap.String("direction", direction),
		zap.String("channel", fmt.Sprintf("0x%02x", channel)),
		zap.String("marker", fmt.Sprintf("0x%02x", marker)),
		zap.Int("payload_length", len(payload)),
		zap.String("hex_dump", hexDump(payload)),
		zap.String("ascii", asciiDump(payload)),
	)
}

// LogReset logs a session reset
func LogReset(link string, reason string, oldSession, newSession uint16) {
	Warn("Session reset",
		zap.String("link", link),
		zap.String("reason", reason),
		zap.Uint16("old_session", oldSession),
		zap.Uint16("new_session", newSession),
	)
}

// dumpLimit caps how many payload bytes a frame log entry carries.
const dumpLimit = 256

func clip(data []byte) (head []byte, more bool) {
	if len(data) > dumpLimit {
		return data[:dumpLimit], true
	}
	return data, false
}

func hexDump(data []byte) string {
	head, more := clip(data)
	out := hex.EncodeToString(head)
	if more {
		out += "..."
	}
	return out
}

func asciiDump(data []byte) string {
	head, _ := clip(data)
	return strings.Map(func(r rune) rune {
		if r < ' ' || r > '~' {
			return '.'
		}
		return r
	}, string(head))
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
