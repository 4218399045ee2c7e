package journal

import (
	"log/slog"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// journalArea is the area reserved for the flash-backed journal on
// boards with no MRAM, analogous to area 0's reservation for the
// superblock chain.
const journalArea = types.AreaPos(1)

// Flash is the Journal backend for boards without MRAM: entries append
// one per page within journalArea; Clear is a block erase of the whole
// area (spec.md §4.9, "Flash backend").
type Flash struct {
	param types.Param
	drv   *driver.Facade
	areas interfaces.AreaManager
	log   *slog.Logger
	page  uint32 // next free page offset within journalArea
}

// NewFlash creates a Flash-backed Journal over journalArea.
func NewFlash(param types.Param, drv *driver.Facade, areas interfaces.AreaManager, log *slog.Logger) *Flash {
	if log == nil {
		log = slog.Default()
	}
	return &Flash{param: param, drv: drv, areas: areas, log: log}
}

// Format claims journalArea. Only called once, at paffs.Format time.
func (f *Flash) Format() error {
	return f.areas.InitArea(journalArea, types.AreaTypeJournal)
}

// Recover re-derives the in-memory page cursor at mount time by
// scanning journalArea from its first page until it hits one that
// doesn't decode as a valid entry tag, which marks the unwritten
// tail left by the last Clear. Unlike MRAM, flash carries no separate
// persisted cursor: the page contents themselves are the only record.
func (f *Flash) Recover() error {
	pageBuf := make([]byte, f.param.DataBytesPerPage)
	total := f.param.PagesPerBlock * f.param.BlocksPerArea
	for p := uint32(0); p < total; p++ {
		abs := f.areas.PhysicalPage(journalArea, p)
		if err := f.drv.ReadPage(abs, pageBuf); err != nil {
			break
		}
		if _, err := types.EntrySize(types.Tag(pageBuf[0])); err != nil {
			break
		}
		f.page = p + 1
	}
	return nil
}

// AddEvent implements interfaces.Journal.
func (f *Flash) AddEvent(e types.Entry) error {
	if f.page >= f.param.PagesPerBlock*f.param.BlocksPerArea {
		return types.NewError("journal.AddEvent", types.KindNoSpace, nil)
	}
	buf := make([]byte, f.param.DataBytesPerPage)
	copy(buf, e.MarshalBinary())
	abs := f.areas.PhysicalPage(journalArea, f.page)
	if err := f.drv.WritePage(abs, buf); err != nil {
		return err
	}
	f.page++
	return nil
}

// Checkpoint implements interfaces.Journal.
func (f *Flash) Checkpoint() error {
	return f.AddEvent(types.CheckpointEntry())
}

// Clear implements interfaces.Journal.
func (f *Flash) Clear() error {
	first, last := f.areas.PhysicalBlockRange(journalArea)
	for b := first; b < last; b++ {
		if err := f.drv.EraseBlock(b); err != nil {
			return err
		}
	}
	if err := f.areas.IncrementErasecount(journalArea); err != nil {
		return err
	}
	f.page = 0
	return nil
}

// ProcessBuffer implements interfaces.Journal.
func (f *Flash) ProcessBuffer(handlers interfaces.TopicHandlers) error {
	var buf []byte
	pageBuf := make([]byte, f.param.DataBytesPerPage)
	for p := uint32(0); p < f.page; p++ {
		abs := f.areas.PhysicalPage(journalArea, p)
		if err := f.drv.ReadPage(abs, pageBuf); err != nil {
			return err
		}
		tag := types.Tag(pageBuf[0])
		size, err := types.EntrySize(tag)
		if err != nil {
			f.log.Warn("journal: stopping flash replay at undecodable tag", "page", p)
			break
		}
		buf = append(buf, pageBuf[:size]...)
	}
	return replay(buf, handlers, f.log)
}
