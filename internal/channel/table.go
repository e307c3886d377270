package channel

import (
	"github.com/muurk/fluxusb/internal/logging"
	"go.uber.org/zap"
)

// MaxChannels is the number of application channel slots.
const MaxChannels = 8

// Status is the result of an open or close request as sent on the wire.
type Status string

const (
	StatusOK             Status = "ok"
	StatusBadParams      Status = "BAD_PARAMS"
	StatusResourceBusy   Status = "RESOURCE_BUSY"
	StatusSubsystemError Status = "SUBSYSTEM_ERROR"
	StatusError          Status = "error"
)

type slot struct {
	kind    Kind
	handler Handler
}

// Table is the fixed-size registry of open channels. A nil slot is empty.
// Table is not safe for concurrent use.
type Table struct {
	factory Factory
	slots   [MaxChannels]*slot
}

// NewTable creates an empty table that builds handlers with factory.
func NewTable(factory Factory) *Table {
	return &Table{factory: factory}
}

// Open installs a handler of the given kind at index.
func (t *Table) Open(index int, kind Kind, s Sender) Status {
	if index < 0 || index >= MaxChannels {
		return StatusBadParams
	}
	if t.slots[index] != nil {
		return StatusResourceBusy
	}

	h, err := t.factory(index, kind, s)
	if err != nil {
		logging.Warn("Channel handler construction failed",
			zap.Int("channel", index),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		if IsIOError(err) {
			return StatusSubsystemError
		}
		return StatusError
	}

	t.slots[index] = &slot{kind: kind, handler: h}
	logging.Info("Channel opened",
		zap.Int("channel", index),
		zap.String("kind", kind.String()),
	)
	return StatusOK
}

// Close shuts down the handler at index and empties the slot.
// The slot is emptied before the handler's Close runs, so a handler that
// releases itself from Close sees RESOURCE_BUSY instead of recursing.
func (t *Table) Close(index int) Status {
	if index < 0 || index >= MaxChannels {
		return StatusBadParams
	}
	s := t.slots[index]
	if s == nil {
		return StatusResourceBusy
	}

	t.slots[index] = nil
	if err := s.handler.Close(); err != nil {
		logging.Warn("Channel handler close failed",
			zap.Int("channel", index),
			zap.String("kind", s.kind.String()),
			zap.Error(err),
		)
	}
	logging.Info("Channel closed",
		zap.Int("channel", index),
		zap.String("kind", s.kind.String()),
	)
	return StatusOK
}

// CloseAll closes every occupied slot.
func (t *Table) CloseAll() {
	for i := range t.slots {
		if t.slots[i] != nil {
			t.Close(i)
		}
	}
}

// Get returns the handler at index, if any.
func (t *Table) Get(index int) (Handler, bool) {
	if index < 0 || index >= MaxChannels || t.slots[index] == nil {
		return nil, false
	}
	return t.slots[index].handler, true
}

// Kind returns the kind of the handler at index.
func (t *Table) Kind(index int) (Kind, bool) {
	if index < 0 || index >= MaxChannels || t.slots[index] == nil {
		return 0, false
	}
	return t.slots[index].kind, true
}

// Occupied returns the indices of open channels in ascending order.
func (t *Table) Occupied() []int {
	var out []int
	for i, s := range t.slots {
		if s != nil {
			out = append(out, i)
		}
	}
	return out
}

// Len returns the number of open channels.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.slots {
		if s != nil {
			n++
		}
	}
	return n
}
