// Package config loads the fluxusb daemon configuration.
//
// The configuration is a YAML file stored in the platform configuration
// directory unless a path is given explicitly:
//   - Linux: $XDG_CONFIG_HOME/fluxusb/config.yaml or $HOME/.config/fluxusb/config.yaml
//   - macOS: $HOME/.config/fluxusb/config.yaml
//   - Windows: %LOCALAPPDATA%\fluxusb\config.yaml
//
// Keys missing from the file keep their defaults:
//
//	version: 1
//	log_level: info
//	device:
//	  serial: FX01234567
//	link:
//	  usb_device: /dev/ttyGS0
//	  buffer_size: 1024
//	  padding_allowed: true
//	handlers:
//	  camera_socket: /run/fluxusb/camera.sock
//	metrics:
//	  addr: 127.0.0.1:9750
package config
