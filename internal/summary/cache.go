// Package summary implements the area-summary cache (component C): a
// fixed-capacity cache of per-area page-status bitmaps, with commit to
// flash and LRU-ish eviction.
package summary

import (
	"log/slog"

	"golang.org/x/exp/maps"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// metaAsWritten and metaVersion occupy the single byte preceding the
// packed bitmap on flash (spec.md §6 and SPEC_FULL.md §9).
const (
	metaAsWritten = 1 << 0
	metaVersion1  = 1 << 4
)

// Cache implements interfaces.SummaryCache.
type Cache struct {
	param    types.Param
	derived  types.Derived
	drv      *driver.Facade
	am       interfaces.AreaManager
	log      *slog.Logger
	capacity int

	entries map[types.AreaPos]*types.SummaryEntry
	touched map[types.AreaPos]uint64
	seq     uint64
}

// New creates a Cache bounded to param.AreaSummaryCacheSize entries.
func New(param types.Param, drv *driver.Facade, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		param:    param,
		derived:  param.Compute(),
		drv:      drv,
		log:      log,
		capacity: int(param.AreaSummaryCacheSize),
		entries:  make(map[types.AreaPos]*types.SummaryEntry),
		touched:  make(map[types.AreaPos]uint64),
	}
}

// SetAreaManager wires the area manager in after construction, breaking
// the summary<->areas import cycle: each depends on the other only
// through the interfaces package.
func (c *Cache) SetAreaManager(am interfaces.AreaManager) { c.am = am }

func (c *Cache) touch(area types.AreaPos) {
	c.seq++
	c.touched[area] = c.seq
}

func (c *Cache) isActiveAnywhere(area types.AreaPos) bool {
	if c.am == nil {
		return false
	}
	for _, t := range []types.AreaType{types.AreaTypeSuperblock, types.AreaTypeJournal, types.AreaTypeIndex, types.AreaTypeData} {
		if pos, ok := c.am.ActiveArea(t); ok && pos == area {
			return true
		}
	}
	return false
}

// evictOne makes room for a new entry, following spec.md §4.3's policy:
// prefer an entry that is not for any currently active area and not
// dirty; if every resident entry is dirty, commit the least-recently
// touched one first (which also clears its dirty flag, making it
// evictable).
func (c *Cache) evictOne() error {
	keys := maps.Keys(c.entries)
	var bestClean types.AreaPos
	foundClean := false
	var bestDirty types.AreaPos
	foundDirty := false
	for _, k := range keys {
		if c.isActiveAnywhere(k) {
			continue
		}
		e := c.entries[k]
		if !e.Dirty {
			if !foundClean || c.touched[k] < c.touched[bestClean] {
				bestClean = k
				foundClean = true
			}
			continue
		}
		if !foundDirty || c.touched[k] < c.touched[bestDirty] {
			bestDirty = k
			foundDirty = true
		}
	}
	if foundClean {
		delete(c.entries, bestClean)
		delete(c.touched, bestClean)
		return nil
	}
	if foundDirty {
		if err := c.Commit(bestDirty); err != nil {
			return err
		}
		delete(c.entries, bestDirty)
		delete(c.touched, bestDirty)
		return nil
	}
	return types.NewError("summaryCache.evict", types.KindOutOfCacheMemory, nil)
}

func (c *Cache) ensureLoaded(area types.AreaPos) (*types.SummaryEntry, error) {
	if e, ok := c.entries[area]; ok {
		c.touch(area)
		return e, nil
	}
	if len(c.entries) >= c.capacity && c.capacity > 0 {
		if err := c.evictOne(); err != nil {
			return nil, err
		}
	}
	if err := c.LoadAreaSummary(area); err != nil {
		return nil, err
	}
	return c.entries[area], nil
}

// LoadAreaSummary implements interfaces.SummaryCache. A brand-new (never
// written) area loads as all-free; an area with a previously committed
// bitmap is read back from its reserved OOB pages.
func (c *Cache) LoadAreaSummary(area types.AreaPos) error {
	if _, ok := c.entries[area]; ok {
		return nil
	}
	e := &types.SummaryEntry{
		Area:  area,
		Pages: make([]types.PageStatus, c.derived.DataPagesPerArea),
	}
	if c.am != nil && c.drv != nil {
		if loaded, err := c.tryReadFromFlash(area, e); err != nil {
			return err
		} else if loaded {
			e.AsWritten = true
		}
	}
	c.entries[area] = e
	c.touch(area)
	return nil
}

func (c *Cache) capacityBytes() int {
	return int(c.derived.OOBPagesPerArea) * int(c.param.DataBytesPerPage)
}

func (c *Cache) tryReadFromFlash(area types.AreaPos, e *types.SummaryEntry) (bool, error) {
	am, ok := c.am.(interface {
		PhysicalPage(types.AreaPos, uint32) uint64
	})
	if !ok {
		return false, nil
	}
	buf := make([]byte, c.capacityBytes())
	off := 0
	for i := uint32(0); i < c.derived.OOBPagesPerArea; i++ {
		page := am.PhysicalPage(area, c.derived.DataPagesPerArea+i)
		chunk := buf[off : off+int(c.param.DataBytesPerPage)]
		if err := c.drv.ReadPage(page, chunk); err != nil {
			if e2, ok := err.(*types.Error); ok && e2.Kind == types.KindBadFlash {
				return false, nil // unwritten / erased region reads as 0xFF, not a hard fault
			}
		}
		off += int(c.param.DataBytesPerPage)
	}
	meta := buf[0]
	if meta == 0xFF || meta&metaAsWritten == 0 {
		return false, nil
	}
	if meta&0xF0 != metaVersion1 {
		return false, types.NewError("loadAreaSummary", types.KindBadFlash, nil)
	}
	unpackBitmap(buf[1:], e.Pages)
	return true, nil
}

// GetPageStatus implements interfaces.SummaryCache.
func (c *Cache) GetPageStatus(addr types.Addr) (types.PageStatus, error) {
	e, err := c.ensureLoaded(addr.Area)
	if err != nil {
		return types.PageFree, err
	}
	if int(addr.Page) >= len(e.Pages) {
		return types.PageFree, types.NewError("getPageStatus", types.KindInvalidInput, nil)
	}
	return e.Pages[addr.Page], nil
}

// SetPageStatus implements interfaces.SummaryCache.
func (c *Cache) SetPageStatus(addr types.Addr, status types.PageStatus) error {
	e, err := c.ensureLoaded(addr.Area)
	if err != nil {
		return err
	}
	if int(addr.Page) >= len(e.Pages) {
		return types.NewError("setPageStatus", types.KindInvalidInput, nil)
	}
	e.Pages[addr.Page] = status
	e.Dirty = true
	e.LoadedFromSuperPage = false
	return nil
}

// Commit implements interfaces.SummaryCache.
func (c *Cache) Commit(area types.AreaPos) error {
	e, ok := c.entries[area]
	if !ok {
		return nil
	}
	if c.am == nil || c.drv == nil {
		e.Dirty = false
		e.AsWritten = true
		return nil
	}
	am, ok := c.am.(interface {
		PhysicalPage(types.AreaPos, uint32) uint64
	})
	if !ok {
		return types.NewError("commit", types.KindBug, nil)
	}
	buf := make([]byte, c.capacityBytes())
	buf[0] = metaAsWritten | metaVersion1
	packBitmap(e.Pages, buf[1:])
	off := 0
	for i := uint32(0); i < c.derived.OOBPagesPerArea; i++ {
		page := am.PhysicalPage(area, c.derived.DataPagesPerArea+i)
		chunk := buf[off : off+int(c.param.DataBytesPerPage)]
		if err := c.drv.WritePage(page, chunk); err != nil {
			return err
		}
		off += int(c.param.DataBytesPerPage)
	}
	e.Dirty = false
	e.AsWritten = true
	c.log.Debug("summary committed", "area", area)
	return nil
}

// DeleteSummary implements interfaces.SummaryCache.
func (c *Cache) DeleteSummary(area types.AreaPos) error {
	delete(c.entries, area)
	delete(c.touched, area)
	return nil
}

// ActiveAreaSummary implements interfaces.SummaryCache.
func (c *Cache) ActiveAreaSummary(area types.AreaPos) (*types.SummaryEntry, bool) {
	e, ok := c.entries[area]
	return e, ok
}

// Seed installs the compact per-active-area summaries carried by a
// scanned super-index directly into the cache, bypassing the flash
// OOB read: an active area's bitmap is never committed to its OOB
// pages until CloseArea, so it is only recoverable from the
// super-index snapshot after a crash (spec.md §3, "per-active-area
// compact summary"). Used once, by Device.Mount, right after the area
// map itself is restored.
func (c *Cache) Seed(entries map[types.AreaPos]types.SummaryEntry) {
	for pos, e := range entries {
		entry := e
		entry.Area = pos
		entry.LoadedFromSuperPage = true
		entry.AsWritten = true
		c.entries[pos] = &entry
		c.touch(pos)
	}
}

// FreePageCount implements interfaces.SummaryCache.
func (c *Cache) FreePageCount(area types.AreaPos) (int, error) {
	e, err := c.ensureLoaded(area)
	if err != nil {
		return 0, err
	}
	return e.CountStatus(types.PageFree), nil
}

// FindFreePage implements interfaces.SummaryCache.
func (c *Cache) FindFreePage(area types.AreaPos) (uint32, bool, error) {
	e, err := c.ensureLoaded(area)
	if err != nil {
		return 0, false, err
	}
	for i, p := range e.Pages {
		if p == types.PageFree {
			return uint32(i), true, nil
		}
	}
	return 0, false, nil
}

// DirtyPageCount implements interfaces.SummaryCache.
func (c *Cache) DirtyPageCount(area types.AreaPos) (int, error) {
	e, err := c.ensureLoaded(area)
	if err != nil {
		return 0, err
	}
	return e.CountStatus(types.PageDirty), nil
}

// IsFullyDirty implements interfaces.SummaryCache.
func (c *Cache) IsFullyDirty(area types.AreaPos) (bool, error) {
	e, err := c.ensureLoaded(area)
	if err != nil {
		return false, err
	}
	return e.FullyDirty(), nil
}

// packBitmap packs 2 bits per page into dst, least-significant bit pair
// first within each byte (page i at bits 2*(i%4)).
func packBitmap(pages []types.PageStatus, dst []byte) {
	for i, p := range pages {
		byteIdx := i / 4
		if byteIdx >= len(dst) {
			break
		}
		shift := uint(i%4) * 2
		dst[byteIdx] |= byte(p&0x3) << shift
	}
}

// unpackBitmap is the inverse of packBitmap.
func unpackBitmap(src []byte, pages []types.PageStatus) {
	for i := range pages {
		byteIdx := i / 4
		if byteIdx >= len(src) {
			pages[i] = types.PageFree
			continue
		}
		shift := uint(i%4) * 2
		pages[i] = types.PageStatus((src[byteIdx] >> shift) & 0x3)
	}
}
