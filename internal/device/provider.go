// Package device supplies the identity record sent in every handshake offer
// and the raw status snapshot returned by ping.
package device

import (
	"fmt"
	"sync"
	"time"
)

// Provider is consulted by the link engine. Info is called once per offer,
// Status once per ping.
type Provider interface {
	Info() map[string]any
	Status() []byte
}

// Identity is the static part of the device info record.
type Identity struct {
	Name    string `yaml:"name"`
	Serial  string `yaml:"serial"`
	Model   string `yaml:"model"`
	Version string `yaml:"version"`
	UUID    string `yaml:"uuid"`
}

// State is the coarse machine state reported in status snapshots.
type State string

const (
	StateIdle    State = "ST_IDLE"
	StateRunning State = "ST_RUNNING"
	StatePaused  State = "ST_PAUSED"
	StateError   State = "ST_ERROR"
)

// ProtocolLevel is the highest protocol level this device implements.
const ProtocolLevel = 1

// Static is a Provider backed by a fixed identity and a settable state.
// It is shared by every link and safe for concurrent use.
type Static struct {
	id      Identity
	mu      sync.Mutex
	state   State
	started time.Time
	now     func() time.Time
}

// NewStatic creates a provider reporting id, in StateIdle.
func NewStatic(id Identity) *Static {
	return &Static{
		id:      id,
		state:   StateIdle,
		started: time.Now(),
		now:     time.Now,
	}
}

// SetState changes the state reported by Status.
func (s *Static) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Info returns a fresh identity record. Callers may add keys to it.
func (s *Static) Info() map[string]any {
	return map[string]any{
		"name":    s.id.Name,
		"serial":  s.id.Serial,
		"model":   s.id.Model,
		"version": s.id.Version,
		"uuid":    s.id.UUID,
		"proto":   ProtocolLevel,
	}
}

// Status returns the raw snapshot "<state> <uptime seconds>".
func (s *Static) Status() []byte {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	uptime := int64(s.now().Sub(s.started) / time.Second)
	return []byte(fmt.Sprintf("%s %d", st, uptime))
}
