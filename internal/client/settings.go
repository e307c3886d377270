package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/muurk/fluxusb/internal/handlers"
	"github.com/muurk/fluxusb/internal/logging"
	"github.com/muurk/fluxusb/internal/protocol"
	"go.uber.org/zap"
)

// Settings drives a channel opened with the config kind.
type Settings struct {
	c  *Client
	ch byte
}

// NewSettings wraps an already opened config channel.
func NewSettings(c *Client, ch byte) *Settings {
	return &Settings{c: c, ch: ch}
}

func (s *Settings) call(ctx context.Context, req map[string]any) (protocol.Record, error) {
	rec, err := s.c.Request(ctx, s.ch, req)
	if err != nil {
		return nil, err
	}
	return rec, Check(rec)
}

// Get returns the value of key. found is false when the device has no such
// key.
func (s *Settings) Get(ctx context.Context, key string) (value string, found bool, err error) {
	rec, err := s.call(ctx, map[string]any{"cmd": "get", "key": key})
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) && rejected.Has(handlers.CodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	value, _ = rec.String("value")
	return value, true, nil
}

// Set stores value under key.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.call(ctx, map[string]any{"cmd": "set", "key": key, "value": value})
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Settings) Delete(ctx context.Context, key string) error {
	_, err := s.call(ctx, map[string]any{"cmd": "delete", "key": key})
	var rejected *RejectedError
	if errors.As(err, &rejected) && rejected.Has(handlers.CodeNotFound) {
		return nil
	}
	return err
}

// Keys lists the stored keys.
func (s *Settings) Keys(ctx context.Context) ([]string, error) {
	rec, err := s.call(ctx, map[string]any{"cmd": "list"})
	if err != nil {
		return nil, err
	}
	list, _ := rec["keys"].([]any)
	keys := make([]string, 0, len(list))
	for _, k := range list {
		if str, ok := k.(string); ok {
			keys = append(keys, str)
		}
	}
	return keys, nil
}

// Snapshot is the state of a set of keys before a change.
type Snapshot struct {
	Values  map[string]string
	Missing []string
	Taken   time.Time
}

// Snapshot reads the current value of every key.
func (s *Settings) Snapshot(ctx context.Context, keys []string) (*Snapshot, error) {
	snap := &Snapshot{Values: make(map[string]string), Taken: time.Now()}
	for _, key := range keys {
		v, found, err := s.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s for snapshot: %w", key, err)
		}
		if found {
			snap.Values[key] = v
		} else {
			snap.Missing = append(snap.Missing, key)
		}
	}
	return snap, nil
}

// Restore writes the snapshot back: saved values are set and keys that did
// not exist are deleted.
func (s *Settings) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return errors.New("client: snapshot is nil")
	}
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(snap.Values)) {
		if err := s.Set(ctx, key, snap.Values[key]); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", key, err))
		}
	}
	for _, key := range snap.Missing {
		if err := s.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ApplyResult reports what Apply did.
type ApplyResult struct {
	Applied    []string `json:"applied"`
	Mismatches []string `json:"mismatches,omitempty"`
	RolledBack bool     `json:"rolled_back"`
}

// Apply writes every value, reads each one back and restores the previous
// state if a write fails or a value does not verify. The returned error is
// the first failure; the result is always non-nil.
func (s *Settings) Apply(ctx context.Context, values map[string]string) (*ApplyResult, error) {
	result := &ApplyResult{}
	keys := slices.Sorted(maps.Keys(values))

	snap, err := s.Snapshot(ctx, keys)
	if err != nil {
		return result, err
	}

	var failure error
	for _, key := range keys {
		if err := s.Set(ctx, key, values[key]); err != nil {
			failure = fmt.Errorf("set %s: %w", key, err)
			break
		}
		result.Applied = append(result.Applied, key)
	}

	if failure == nil {
		for _, key := range keys {
			got, found, err := s.Get(ctx, key)
			switch {
			case err != nil:
				failure = fmt.Errorf("verify %s: %w", key, err)
			case !found:
				result.Mismatches = append(result.Mismatches, fmt.Sprintf("%s: missing", key))
			case got != values[key]:
				result.Mismatches = append(result.Mismatches, fmt.Sprintf("%s: expected %q, got %q", key, values[key], got))
			}
			if failure != nil {
				break
			}
		}
		if failure == nil && len(result.Mismatches) > 0 {
			failure = fmt.Errorf("verification failed: %d mismatches", len(result.Mismatches))
		}
	}

	if failure == nil {
		return result, nil
	}

	logging.Warn("Settings update failed, rolling back",
		zap.Strings("applied", result.Applied),
		zap.Error(failure),
	)
	if err := s.Restore(ctx, snap); err != nil {
		return result, errors.Join(failure, fmt.Errorf("rollback failed: %w", err))
	}
	result.RolledBack = true
	return result, failure
}
