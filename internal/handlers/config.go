package handlers

import (
	"github.com/muurk/fluxusb/internal/channel"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"github.com/muurk/fluxusb/internal/transfer"
	"go.uber.org/zap"
)

// Config serves get, set, delete and list against a Store.
type Config struct {
	s     channel.Sender
	store *Store
}

// NewConfig creates a config channel handler.
func NewConfig(s channel.Sender, store *Store) *Config {
	return &Config{s: s, store: store}
}

func (c *Config) OnPayload(rec protocol.Record) error {
	cmd, _ := rec.String("cmd")
	key, hasKey := rec.String("key")

	switch cmd {
	case "get":
		if !hasKey {
			return fail(c.s, CodeBadParams, "key")
		}
		v, found := c.store.Get(key)
		if !found {
			return fail(c.s, CodeNotFound, key)
		}
		return ok(c.s, cmd, map[string]any{"key": key, "value": v})

	case "set":
		value, hasValue := rec.String("value")
		if !hasKey || !hasValue {
			return fail(c.s, CodeBadParams, "key", "value")
		}
		if err := c.store.Set(key, value); err != nil {
			logging.Warn("Config store write failed", zap.String("key", key), zap.Error(err))
			return fail(c.s, CodeSubsystem, key)
		}
		return ok(c.s, cmd, map[string]any{"key": key})

	case "delete":
		if !hasKey {
			return fail(c.s, CodeBadParams, "key")
		}
		found, err := c.store.Delete(key)
		if err != nil {
			logging.Warn("Config store write failed", zap.String("key", key), zap.Error(err))
			return fail(c.s, CodeSubsystem, key)
		}
		if !found {
			return fail(c.s, CodeNotFound, key)
		}
		return ok(c.s, cmd, map[string]any{"key": key})

	case "list":
		return ok(c.s, cmd, map[string]any{"keys": c.store.Keys()})

	default:
		return fail(c.s, CodeNotSupport, cmd)
	}
}

func (c *Config) OnBinary([]byte) error {
	return fail(c.s, CodeUnexpectedData)
}

func (c *Config) OnBinaryAck() error {
	return transfer.ErrUnexpectedAck
}

func (c *Config) Close() error {
	return nil
}
