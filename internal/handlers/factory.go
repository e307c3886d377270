package handlers

import (
	"fmt"

	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/config"
)

// Factory returns a channel.Factory building handlers from cfg. The config
// store is shared by every config channel of every link.
func Factory(cfg config.Handlers, store *Store) channel.Factory {
	return func(index int, kind channel.Kind, s channel.Sender) (channel.Handler, error) {
		switch kind {
		case channel.KindRobot:
			return NewRobot(s, cfg.SpoolDir)
		case channel.KindConfig:
			return NewConfig(s, store), nil
		case channel.KindCamera:
			return NewCamera(s, cfg.CameraSocket)
		default:
			return nil, fmt.Errorf("handlers: %w: %s", channel.ErrUnknownKind, kind)
		}
	}
}
