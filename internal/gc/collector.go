// Package gc implements the garbage collector (component D): it
// reclaims space by relocating an area's live pages into a reserved
// scratch area, swapping the two areas' physical backing so external
// addresses keep resolving, and erasing the vacated flash.
package gc

import (
	"log/slog"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// Collector implements interfaces.GarbageCollector.
type Collector struct {
	param   types.Param
	derived types.Derived
	drv     *driver.Facade
	areas   interfaces.AreaManager
	summary interfaces.SummaryCache
	log     *slog.Logger
}

// New creates a Collector. areas and summary are the same manager and
// cache instances the rest of the core uses; the circular areas<->gc
// dependency is resolved by areas.Manager.SetGC after both exist.
func New(param types.Param, drv *driver.Facade, areas interfaces.AreaManager, summary interfaces.SummaryCache, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		param:   param,
		derived: param.Compute(),
		drv:     drv,
		areas:   areas,
		summary: summary,
		log:     log,
	}
}

// CollectGarbage implements interfaces.GarbageCollector.
func (c *Collector) CollectGarbage(target types.AreaType) (interfaces.GCMode, error) {
	buffer, ok := c.areas.GarbageBufferArea()
	if !ok {
		pos, claimed := c.areas.ClaimEmptyUnsetArea()
		if !claimed {
			return c.collectDesperate(target)
		}
		if err := c.areas.MarkAsGarbageBuffer(pos); err != nil {
			return interfaces.GCDesperate, err
		}
		buffer = pos
	}
	return c.collectNormal(target, buffer)
}

// collectNormal relocates the dirtiest closed area of target's live
// pages into buffer, swaps the two areas' physical backing, and erases
// the vacated flash. buffer keeps its garbage-buffer role afterward:
// the physical area it swaps away to is the next round's scratch area.
func (c *Collector) collectNormal(target types.AreaType, buffer types.AreaPos) (interfaces.GCMode, error) {
	victim, ok := c.pickDirtiestVictim(target)
	if !ok {
		return c.collectDesperate(target)
	}

	for i := uint32(0); i < c.derived.DataPagesPerArea; i++ {
		status, err := c.summary.GetPageStatus(types.Addr{Area: victim, Page: i})
		if err != nil {
			return interfaces.GCNormal, err
		}
		if status != types.PageUsed {
			if status == types.PageDirty {
				if err := c.summary.SetPageStatus(types.Addr{Area: victim, Page: i}, types.PageFree); err != nil {
					return interfaces.GCNormal, err
				}
			}
			continue
		}
		buf := make([]byte, c.param.DataBytesPerPage)
		if err := c.drv.ReadPage(c.areas.PhysicalPage(victim, i), buf); err != nil {
			return interfaces.GCNormal, err
		}
		if err := c.drv.WritePage(c.areas.PhysicalPage(buffer, i), buf); err != nil {
			return interfaces.GCNormal, err
		}
	}

	if err := c.areas.Swap(victim, buffer); err != nil {
		return interfaces.GCNormal, err
	}
	if err := c.eraseArea(buffer); err != nil {
		return interfaces.GCNormal, err
	}
	if err := c.summary.DeleteSummary(buffer); err != nil {
		return interfaces.GCNormal, err
	}
	if err := c.areas.Reactivate(victim); err != nil {
		return interfaces.GCNormal, err
	}
	c.log.Info("garbage collected", "mode", "normal", "victim", victim, "buffer", buffer, "type", target)
	return interfaces.GCNormal, nil
}

// collectDesperate erases a fully-dirty closed area of target in place,
// with no relocation, for when no reserved garbage buffer is available.
func (c *Collector) collectDesperate(target types.AreaType) (interfaces.GCMode, error) {
	victim, ok := c.pickFullyDirtyVictim(target)
	if !ok {
		return interfaces.GCDesperate, types.NewError("collectGarbage", types.KindNoSpace, nil)
	}
	if err := c.eraseArea(victim); err != nil {
		return interfaces.GCDesperate, err
	}
	if err := c.summary.DeleteSummary(victim); err != nil {
		return interfaces.GCDesperate, err
	}
	if err := c.areas.Reactivate(victim); err != nil {
		return interfaces.GCDesperate, err
	}
	c.log.Warn("garbage collected", "mode", "desperate", "victim", victim, "type", target)
	return interfaces.GCDesperate, nil
}

func (c *Collector) eraseArea(pos types.AreaPos) error {
	first, last := c.areas.PhysicalBlockRange(pos)
	for b := first; b < last; b++ {
		if err := c.drv.EraseBlock(b); err != nil {
			if rerr := c.areas.Retire(pos); rerr != nil {
				return rerr
			}
			return err
		}
	}
	return c.areas.IncrementErasecount(pos)
}

// pickDirtiestVictim returns the closed area of type t with the most
// dirty pages, ties going to the lower erase count, per spec.md §4.4's
// victim-selection rule.
func (c *Collector) pickDirtiestVictim(t types.AreaType) (types.AreaPos, bool) {
	candidates := c.areas.ClosedAreasOfType(t)
	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	bestDirty := -1
	for _, cand := range candidates {
		dirty, err := c.summary.DirtyPageCount(cand)
		if err != nil {
			continue
		}
		if dirty > bestDirty || (dirty == bestDirty && c.areas.Area(cand).EraseCount < c.areas.Area(best).EraseCount) {
			best = cand
			bestDirty = dirty
		}
	}
	if bestDirty <= 0 {
		return 0, false
	}
	return best, true
}

// pickFullyDirtyVictim returns a closed area of type t with zero live
// pages, so it can be erased without anywhere to copy its contents.
func (c *Collector) pickFullyDirtyVictim(t types.AreaType) (types.AreaPos, bool) {
	for _, cand := range c.areas.ClosedAreasOfType(t) {
		full, err := c.summary.IsFullyDirty(cand)
		if err == nil && full {
			return cand, true
		}
	}
	return 0, false
}
