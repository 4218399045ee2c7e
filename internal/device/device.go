// Package device is the composition root (component wiring every other
// component together behind Format/Mount/Unmount), the way the wider
// example corpus's pkg/services.ServiceFactory wires a container's
// dependent services. Unlike that factory, Device assumes the
// single-threaded, cooperative-scheduling core spec.md requires: no
// internal locking.
package device

import (
	"log/slog"

	"go.uber.org/multierr"

	"github.com/cirromulus/paffs-go/internal/areas"
	"github.com/cirromulus/paffs-go/internal/btree"
	"github.com/cirromulus/paffs-go/internal/dataio"
	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/gc"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/journal"
	"github.com/cirromulus/paffs-go/internal/pac"
	"github.com/cirromulus/paffs-go/internal/summary"
	"github.com/cirromulus/paffs-go/internal/superblock"
	"github.com/cirromulus/paffs-go/internal/types"
)

// JournalBackend selects which of the two journal implementations a
// Device wires in (spec.md §3, "Journal").
type JournalBackend int

const (
	// JournalBackendMRAM stores the journal as a monotonic byte cursor
	// in battery-backed MRAM, the preferred backend when the platform
	// has one.
	JournalBackendMRAM JournalBackend = iota
	// JournalBackendFlash stores one entry per page in a dedicated
	// reserved area, for platforms with no MRAM.
	JournalBackendFlash
)

// areaTypesWithActiveArea lists every area type the superblock's
// per-generation snapshot tracks an active instance of.
var areaTypesWithActiveArea = []types.AreaType{
	types.AreaTypeSuperblock,
	types.AreaTypeJournal,
	types.AreaTypeIndex,
	types.AreaTypeData,
}

// Device wires the whole on-flash core together: area map, summary
// cache, garbage collector, B⁺-tree, page-address cache, data I/O, the
// superblock chain, and a journal backend, and drives their
// Format/Mount/Unmount lifecycle as one unit (spec.md §7, "Cross-module
// lifecycle").
type Device struct {
	param   types.Param
	drv     *driver.Facade
	summary *summary.Cache
	areas   *areas.Manager
	gc      *gc.Collector
	tree    *btree.Tree
	pac     *pac.Cache
	io      *dataio.IO
	sb      *superblock.Chain
	journal interfaces.Journal

	log *slog.Logger

	mramBase, mramSize uint64
	mounted            bool
}

// New constructs a Device and wires its components, but performs no I/O:
// callers must still call Format (on a fresh image) or Mount (on an
// existing one). mramBase/mramSize are only consulted when backend is
// JournalBackendMRAM.
func New(raw interfaces.Driver, param types.Param, backend JournalBackend, mramBase, mramSize uint64, log *slog.Logger) *Device {
	if log == nil {
		log = slog.Default()
	}

	drv := driver.New(raw, log)
	summaryCache := summary.New(param, drv, log)
	areaMgr := areas.New(param, drv, summaryCache, log)
	summaryCache.SetAreaManager(areaMgr)
	gcCollector := gc.New(param, drv, areaMgr, summaryCache, log)
	areaMgr.SetGC(gcCollector)

	tree := btree.New(param, drv, areaMgr, summaryCache, log)
	pacCache := pac.New(param, drv, areaMgr, summaryCache, tree, log)
	io := dataio.New(param, drv, areaMgr, summaryCache, pacCache, log)
	sb := superblock.New(param, drv, areaMgr, summaryCache, log)

	var jr interfaces.Journal
	switch backend {
	case JournalBackendFlash:
		jr = journal.NewFlash(param, drv, areaMgr, log)
	default:
		jr = journal.NewMRAM(drv, mramBase, mramSize, log)
	}

	return &Device{
		param:    param,
		drv:      drv,
		summary:  summaryCache,
		areas:    areaMgr,
		gc:       gcCollector,
		tree:     tree,
		pac:      pacCache,
		io:       io,
		sb:       sb,
		journal:  jr,
		log:      log,
		mramBase: mramBase,
		mramSize: mramSize,
	}
}

// Tree returns the wired B⁺-tree, for pkg/paffs's inode operations.
func (d *Device) Tree() interfaces.Tree { return d.tree }

// DataIO returns the wired data I/O component, for pkg/paffs's
// read/write/truncate operations.
func (d *Device) DataIO() interfaces.DataIO { return d.io }

// PageAddressCache returns the wired page-address cache, for pkg/paffs
// to re-target between inodes.
func (d *Device) PageAddressCache() interfaces.PageAddressCache { return d.pac }

// Journal returns the wired journal backend, for pkg/paffs's
// AddEvent/Checkpoint calls around a mutation.
func (d *Device) Journal() interfaces.Journal { return d.journal }

// Param returns the size constants this Device was opened with.
func (d *Device) Param() types.Param { return d.param }

// Format initializes a fresh image: claims the superblock and journal's
// reserved areas, opens the journal, writes an empty root node, and
// commits the first super-index generation (spec.md §7, "Format").
func (d *Device) Format() error {
	if err := d.sb.Format(); err != nil {
		return err
	}
	if f, ok := d.journal.(interface{ Format() error }); ok {
		if err := f.Format(); err != nil {
			return err
		}
	}
	if err := d.openJournal(); err != nil {
		return err
	}

	root, err := d.tree.Flush()
	if err != nil {
		return err
	}
	d.sb.RegisterRootnode(root)

	if err := d.sb.Commit(d.buildSuperIndex(root)); err != nil {
		return err
	}
	d.mounted = true
	return nil
}

// openJournal re-derives whichever backend's transient cursor state
// from what's actually on the medium: MRAM reads its persisted prologue
// back, Flash rescans its area for the first undecodable page. Safe to
// call right after Format too, when both simply land on zero.
func (d *Device) openJournal() error {
	if m, ok := d.journal.(interface{ Open() error }); ok {
		return m.Open()
	}
	if f, ok := d.journal.(interface{ Recover() error }); ok {
		return f.Recover()
	}
	return nil
}

// Mount scans the superblock chain for the latest super-index, restores
// the area map and each active area's compact summary, re-anchors the
// tree at the persisted root, and replays the journal against handlers
// (spec.md §7, "Mount"). handlers may be a zero-value TopicHandlers if
// the caller has no topics to apply yet.
func (d *Device) Mount(handlers interfaces.TopicHandlers) error {
	idx, err := d.sb.Scan()
	if err != nil {
		return err
	}
	d.areas.SetAreaMap(idx.AreaMap)
	d.summary.Seed(idx.Summaries)

	if err := d.openJournal(); err != nil {
		return err
	}
	if err := d.journal.ProcessBuffer(handlers); err != nil {
		return err
	}

	if err := d.tree.LoadRoot(idx.Rootnode); err != nil {
		return err
	}
	d.mounted = true
	return nil
}

// Unmount flushes every dirty cache, closes every active area (which
// commits its summary), and commits a final super-index generation.
// Each component's flush is attempted independently and any
// failures are combined rather than short-circuited, so one faulty
// commit doesn't mask a sibling's (spec.md §7, "Unmount").
func (d *Device) Unmount() error {
	if !d.mounted {
		return types.NewError("device.Unmount", types.KindNotMounted, nil)
	}

	var err error

	root, flushErr := d.tree.Flush()
	err = multierr.Append(err, flushErr)
	if flushErr == nil {
		d.sb.RegisterRootnode(root)
	}

	for _, t := range areaTypesWithActiveArea {
		if pos, ok := d.areas.ActiveArea(t); ok {
			err = multierr.Append(err, d.areas.CloseArea(pos))
		}
	}

	err = multierr.Append(err, d.sb.Commit(d.buildSuperIndex(root)))
	err = multierr.Append(err, d.journal.Clear())

	d.mounted = false
	return err
}

// buildSuperIndex snapshots the area map and every active area's current
// summary into the shape the superblock chain commits.
func (d *Device) buildSuperIndex(root types.Addr) interfaces.SuperIndex {
	idx := interfaces.SuperIndex{
		Rootnode:    root,
		AreaMap:     d.areas.AreaMap(),
		ActiveAreas: make(map[types.AreaType]types.AreaPos),
		Summaries:   make(map[types.AreaPos]types.SummaryEntry),
	}
	for _, t := range areaTypesWithActiveArea {
		pos, ok := d.areas.ActiveArea(t)
		if !ok {
			continue
		}
		idx.ActiveAreas[t] = pos
		if e, ok := d.summary.ActiveAreaSummary(pos); ok {
			idx.Summaries[pos] = *e
		}
	}
	return idx
}
