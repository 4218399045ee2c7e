// Package journal implements the journal (component I): a write-ahead
// log of intended mutations, so an interrupted operation is either fully
// applied or fully discarded on the next mount (spec.md §4.9).
package journal

import (
	"encoding/binary"
	"log/slog"

	"go.uber.org/atomic"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// prologueSize is the fixed MRAM header holding the monotonic byte
// cursor ahead of the entry stream.
const prologueSize = 8

// MRAM is the Journal backend for MRAM-equipped boards: entries append
// to a byte stream behind a cursor held in a fixed prologue, so
// truncation is just rewinding the cursor rather than an erase.
type MRAM struct {
	drv         *driver.Facade
	base        uint64
	size        uint64
	log         *slog.Logger
	cursor      atomic.Uint64 // byte offset into the entry stream, past the prologue
	lastCkptOff uint64
	haveCkpt    bool
}

// NewMRAM creates an MRAM-backed Journal occupying [base, base+size) of
// the driver's MRAM byte space. size must be at least prologueSize plus
// room for a handful of entries.
func NewMRAM(drv *driver.Facade, base, size uint64, log *slog.Logger) *MRAM {
	if log == nil {
		log = slog.Default()
	}
	return &MRAM{drv: drv, base: base, size: size, log: log}
}

// Open reads the persisted cursor back from the prologue, for a fresh
// MRAM handle at mount time (the cursor itself is not replay state; the
// caller still calls ProcessBuffer separately).
func (m *MRAM) Open() error {
	buf := make([]byte, prologueSize)
	if err := m.drv.ReadMRAM(m.base, buf); err != nil {
		return err
	}
	m.cursor.Store(binary.LittleEndian.Uint64(buf))
	return nil
}

func (m *MRAM) persistCursor() error {
	buf := make([]byte, prologueSize)
	binary.LittleEndian.PutUint64(buf, m.cursor.Load())
	return m.drv.WriteMRAM(m.base, buf)
}

// AddEvent implements interfaces.Journal.
func (m *MRAM) AddEvent(e types.Entry) error {
	payload := e.MarshalBinary()
	off := m.cursor.Load()
	if prologueSize+off+uint64(len(payload)) > m.size {
		return types.NewError("journal.AddEvent", types.KindNoSpace, nil)
	}
	if err := m.drv.WriteMRAM(m.base+prologueSize+off, payload); err != nil {
		return err
	}
	m.cursor.Store(off + uint64(len(payload)))
	if err := m.persistCursor(); err != nil {
		return err
	}
	if e.Tag == types.TagCheckpoint {
		m.lastCkptOff = off + uint64(len(payload))
		m.haveCkpt = true
	}
	return nil
}

// Checkpoint implements interfaces.Journal.
func (m *MRAM) Checkpoint() error {
	return m.AddEvent(types.CheckpointEntry())
}

// Clear implements interfaces.Journal.
func (m *MRAM) Clear() error {
	m.cursor.Store(0)
	m.haveCkpt = false
	m.lastCkptOff = 0
	return m.persistCursor()
}

// ProcessBuffer implements interfaces.Journal.
func (m *MRAM) ProcessBuffer(handlers interfaces.TopicHandlers) error {
	end := m.cursor.Load()
	buf := make([]byte, end)
	if end > 0 {
		if err := m.drv.ReadMRAM(m.base+prologueSize, buf); err != nil {
			return err
		}
	}
	return replay(buf, handlers, m.log)
}
