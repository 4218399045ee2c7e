// Package areas implements the area manager (component B): it owns the
// area map, assigns area types, tracks which area of each type is
// currently active, and issues erases on behalf of the garbage
// collector.
package areas

import (
	"log/slog"

	"go.uber.org/atomic"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// slot is one logical area map entry. EraseCount is kept as an
// atomic.Uint32 so a GC victim-selection read can never tear against a
// concurrent IncrementErasecount call from the same goroutine stack
// (e.g. a nested driver-retry path); the core is still single-threaded,
// this only buys us a torn-read guarantee, not mutual exclusion.
type slot struct {
	areaType   types.AreaType
	status     types.AreaStatus
	position   types.AreaPos
	eraseCount atomic.Uint32
}

// Manager implements interfaces.AreaManager.
type Manager struct {
	param   types.Param
	derived types.Derived
	drv     *driver.Facade
	summary interfaces.SummaryCache
	gc      interfaces.GarbageCollector
	log     *slog.Logger

	slots  []slot
	active map[types.AreaType]types.AreaPos
}

// New creates a Manager for a freshly formatted device: all areasNo
// slots start empty, positioned identity-mapped (slot i backs physical
// area i) until GC starts swapping them.
func New(param types.Param, drv *driver.Facade, summary interfaces.SummaryCache, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	derived := param.Compute()
	m := &Manager{
		param:   param,
		derived: derived,
		drv:     drv,
		summary: summary,
		log:     log,
		slots:   make([]slot, derived.AreasNo),
		active:  make(map[types.AreaType]types.AreaPos),
	}
	for i := range m.slots {
		m.slots[i].position = types.AreaPos(i)
	}
	return m
}

// SetGC wires the garbage collector in after construction, breaking the
// areas<->gc import cycle the way the two components' real dependency
// runs both directions (GC calls the area manager; the area manager
// calls GC when out of space).
func (m *Manager) SetGC(gc interfaces.GarbageCollector) { m.gc = gc }

// PhysicalPage derives the absolute page number backing (pos, pageOffset),
// per spec.md §3 ("Addressing").
func (m *Manager) PhysicalPage(pos types.AreaPos, pageOffset uint32) uint64 {
	s := &m.slots[pos]
	return uint64(s.position)*uint64(m.param.BlocksPerArea)*uint64(m.param.PagesPerBlock) + uint64(pageOffset)
}

// PhysicalBlockRange returns the [first, last) absolute block range
// currently backing pos.
func (m *Manager) PhysicalBlockRange(pos types.AreaPos) (uint64, uint64) {
	s := &m.slots[pos]
	first := uint64(s.position) * uint64(m.param.BlocksPerArea)
	return first, first + uint64(m.param.BlocksPerArea)
}

// Area implements interfaces.AreaManager.
func (m *Manager) Area(pos types.AreaPos) types.Area {
	s := &m.slots[pos]
	return types.Area{
		Type:       s.areaType,
		Status:     s.status,
		EraseCount: s.eraseCount.Load(),
		Position:   s.position,
	}
}

// AreaMap implements interfaces.AreaManager.
func (m *Manager) AreaMap() []types.Area {
	out := make([]types.Area, len(m.slots))
	for i := range m.slots {
		out[i] = m.Area(types.AreaPos(i))
	}
	return out
}

// SetAreaMap implements interfaces.AreaManager.
func (m *Manager) SetAreaMap(areas []types.Area) {
	m.slots = make([]slot, len(areas))
	m.active = make(map[types.AreaType]types.AreaPos)
	for i, a := range areas {
		m.slots[i].areaType = a.Type
		m.slots[i].status = a.Status
		m.slots[i].position = a.Position
		m.slots[i].eraseCount.Store(a.EraseCount)
		if a.Status == types.AreaStatusActive {
			m.active[a.Type] = types.AreaPos(i)
		}
	}
}

// ActiveArea implements interfaces.AreaManager.
func (m *Manager) ActiveArea(t types.AreaType) (types.AreaPos, bool) {
	pos, ok := m.active[t]
	return pos, ok
}

// IncrementErasecount implements interfaces.AreaManager.
func (m *Manager) IncrementErasecount(pos types.AreaPos) error {
	m.slots[pos].eraseCount.Inc()
	return nil
}

// InitArea implements interfaces.AreaManager: claims an empty slot,
// assigns it a type, and marks it active.
func (m *Manager) InitArea(pos types.AreaPos, t types.AreaType) error {
	s := &m.slots[pos]
	if s.status != types.AreaStatusEmpty {
		return types.NewError("initArea", types.KindInvalidInput, nil)
	}
	s.areaType = t
	s.status = types.AreaStatusActive
	m.active[t] = pos
	if err := m.summary.LoadAreaSummary(pos); err != nil {
		return err
	}
	m.log.Debug("area initialized", "area", pos, "type", t)
	return nil
}

// CloseArea implements interfaces.AreaManager: commits the summary, then
// flips status to closed.
func (m *Manager) CloseArea(pos types.AreaPos) error {
	s := &m.slots[pos]
	if err := m.summary.Commit(pos); err != nil {
		return err
	}
	s.status = types.AreaStatusClosed
	if m.active[s.areaType] == pos {
		delete(m.active, s.areaType)
	}
	m.log.Debug("area closed", "area", pos, "type", s.areaType)
	return nil
}

// Swap implements interfaces.AreaManager: exchanges the physical position
// backing two logical area slots, so Addrs that name either logical slot
// keep resolving correctly after a GC copy.
func (m *Manager) Swap(a, b types.AreaPos) error {
	m.slots[a].position, m.slots[b].position = m.slots[b].position, m.slots[a].position
	return nil
}

// Retire implements interfaces.AreaManager.
func (m *Manager) Retire(pos types.AreaPos) error {
	s := &m.slots[pos]
	if m.active[s.areaType] == pos {
		delete(m.active, s.areaType)
	}
	s.areaType = types.AreaTypeRetired
	s.status = types.AreaStatusClosed
	if err := m.summary.DeleteSummary(pos); err != nil {
		return err
	}
	m.log.Warn("area retired", "area", pos)
	return nil
}

// emptyCandidates returns every empty, unassigned slot available for
// ordinary allocation. An area reserved as the garbage buffer is empty
// but not unassigned, and is deliberately excluded: it is GC's scratch
// area, not general-purpose free space.
func (m *Manager) emptyCandidates() []types.AreaPos {
	var out []types.AreaPos
	for i := range m.slots {
		if m.slots[i].status == types.AreaStatusEmpty && m.slots[i].areaType == types.AreaTypeUnset {
			out = append(out, types.AreaPos(i))
		}
	}
	return out
}

// lowestEraseCountEmpty picks the empty, unassigned slot with the
// lowest erase count, per spec.md §4.2's wear-levelling tie-break.
func (m *Manager) lowestEraseCountEmpty() (types.AreaPos, bool) {
	candidates := m.emptyCandidates()
	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if m.slots[c].eraseCount.Load() < m.slots[best].eraseCount.Load() {
			best = c
		}
	}
	return best, true
}

// ClaimEmptyUnsetArea implements interfaces.AreaManager.
func (m *Manager) ClaimEmptyUnsetArea() (types.AreaPos, bool) {
	return m.lowestEraseCountEmpty()
}

// ClosedAreasOfType implements interfaces.AreaManager.
func (m *Manager) ClosedAreasOfType(t types.AreaType) []types.AreaPos {
	var out []types.AreaPos
	for i := range m.slots {
		if m.slots[i].status == types.AreaStatusClosed && m.slots[i].areaType == t {
			out = append(out, types.AreaPos(i))
		}
	}
	return out
}

// GarbageBufferArea implements interfaces.AreaManager.
func (m *Manager) GarbageBufferArea() (types.AreaPos, bool) {
	for i := range m.slots {
		if m.slots[i].status == types.AreaStatusEmpty && m.slots[i].areaType == types.AreaTypeGarbageBuffer {
			return types.AreaPos(i), true
		}
	}
	return 0, false
}

// MarkAsGarbageBuffer implements interfaces.AreaManager.
func (m *Manager) MarkAsGarbageBuffer(pos types.AreaPos) error {
	s := &m.slots[pos]
	if s.status != types.AreaStatusEmpty {
		return types.NewError("markAsGarbageBuffer", types.KindInvalidInput, nil)
	}
	s.areaType = types.AreaTypeGarbageBuffer
	return nil
}

// Reactivate implements interfaces.AreaManager.
func (m *Manager) Reactivate(pos types.AreaPos) error {
	s := &m.slots[pos]
	if err := m.summary.LoadAreaSummary(pos); err != nil {
		return err
	}
	s.status = types.AreaStatusActive
	m.active[s.areaType] = pos
	m.log.Debug("area reactivated after GC", "area", pos, "type", s.areaType)
	return nil
}

// FindWritableArea implements interfaces.AreaManager.
func (m *Manager) FindWritableArea(t types.AreaType) (types.AreaPos, error) {
	if cur, ok := m.active[t]; ok {
		free, err := m.summary.FreePageCount(cur)
		if err != nil {
			return 0, err
		}
		if free > 0 {
			return cur, nil
		}
		if err := m.CloseArea(cur); err != nil {
			return 0, err
		}
	}
	// Any other already-active area of matching type with space (there
	// should be at most one per the one-active-per-type invariant, but
	// scanning is cheap and keeps this robust to transient states).
	for i := range m.slots {
		if m.slots[i].status == types.AreaStatusActive && m.slots[i].areaType == t {
			pos := types.AreaPos(i)
			free, err := m.summary.FreePageCount(pos)
			if err != nil {
				return 0, err
			}
			if free > 0 {
				m.active[t] = pos
				return pos, nil
			}
		}
	}
	if pos, ok := m.lowestEraseCountEmpty(); ok {
		if err := m.InitArea(pos, t); err != nil {
			return 0, err
		}
		return pos, nil
	}
	if m.gc == nil {
		return 0, types.NewError("findWritableArea", types.KindNoSpace, nil)
	}
	if _, err := m.gc.CollectGarbage(t); err != nil {
		return 0, types.NewError("findWritableArea", types.KindNoSpace, err)
	}
	if pos, ok := m.active[t]; ok {
		return pos, nil
	}
	return 0, types.NewError("findWritableArea", types.KindNoSpace, nil)
}
