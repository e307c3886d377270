package config

import (
	"github.com/muurk/fluxusb/internal/device"
	"github.com/muurk/fluxusb/internal/protocol"
)

// Config is the daemon configuration file.
type Config struct {
	Version   int             `yaml:"version"`
	LogLevel  string          `yaml:"log_level,omitempty"`  // debug, info, warn, error
	LogFormat string          `yaml:"log_format,omitempty"` // console or json
	LogFile   string          `yaml:"log_file,omitempty"`   // rotated log file, empty = stderr
	Device    device.Identity `yaml:"device"`
	Link      Link            `yaml:"link"`
	Handlers  Handlers        `yaml:"handlers"`
	Metrics   Metrics         `yaml:"metrics"`
}

// Link configures the physical link drivers.
type Link struct {
	USBDevice      string `yaml:"usb_device"`            // Gadget serial tty
	TCPAddr        string `yaml:"tcp_addr"`              // gnet bridge listen address
	WSAddr         string `yaml:"ws_addr"`               // WebSocket bridge listen address
	WSCertFile     string `yaml:"ws_cert,omitempty"`     // Serve wss:// when set with WSKeyFile
	WSKeyFile      string `yaml:"ws_key,omitempty"`
	BufferSize     int    `yaml:"buffer_size"`           // Receive buffer per link
	PaddingAllowed bool   `yaml:"padding_allowed"`       // Accept protocol_level 1
	Multicore      bool   `yaml:"multicore"`             // gnet multicore event loops
	CaptureDir     string `yaml:"capture_dir,omitempty"` // JSONL frame capture, empty = off
}

// Handlers configures the channel handlers.
type Handlers struct {
	CameraSocket string `yaml:"camera_socket"` // Unix socket of the camera bridge
	ConfigStore  string `yaml:"config_store"`  // YAML key/value file for config channels
	SpoolDir     string `yaml:"spool_dir"`     // Robot channel file spool
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Addr string `yaml:"addr,omitempty"` // empty = disabled
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Version: 1,
		Device: device.Identity{
			Name:    "flux",
			Serial:  "FX00000000",
			Model:   "flux-delta",
			Version: "0.0.0",
		},
		Link: Link{
			USBDevice:      "/dev/ttyGS0",
			TCPAddr:        "127.0.0.1:7750",
			WSAddr:         "127.0.0.1:7751",
			BufferSize:     protocol.DefaultBufferSize,
			PaddingAllowed: true,
		},
		Handlers: Handlers{
			CameraSocket: "/run/fluxusb/camera.sock",
			ConfigStore:  "/var/lib/fluxusb/settings.yaml",
			SpoolDir:     "/var/lib/fluxusb/spool",
		},
	}
}
