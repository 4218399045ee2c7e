package interfaces

import "github.com/cirromulus/paffs-go/internal/types"

// AreaManager owns the area map and assigns/reclaims logical areas
// (component B).
type AreaManager interface {
	// FindWritableArea returns an area of the given type with free
	// pages, allocating/activating one (and invoking GC) if needed.
	FindWritableArea(t types.AreaType) (types.AreaPos, error)

	// InitArea claims an empty area, assigns it a type, and marks it
	// active.
	InitArea(pos types.AreaPos, t types.AreaType) error

	// CloseArea commits the area's summary and flips its status to
	// closed.
	CloseArea(pos types.AreaPos) error

	// Swap exchanges the physical positions backing two logical area
	// slots, used by GC so externally held Addrs keep pointing at the
	// live copy.
	Swap(a, b types.AreaPos) error

	// Retire withdraws an area from use after an unrecoverable erase or
	// write failure.
	Retire(pos types.AreaPos) error

	// ActiveArea returns the current active area for the given type.
	ActiveArea(t types.AreaType) (types.AreaPos, bool)

	// IncrementErasecount bumps pos's erase counter after a successful
	// erase.
	IncrementErasecount(pos types.AreaPos) error

	// Area returns a copy of the area record at pos.
	Area(pos types.AreaPos) types.Area

	// AreaMap returns a snapshot of the full area map, used by the
	// superblock chain to persist it into the super-index.
	AreaMap() []types.Area

	// SetAreaMap replaces the whole area map, used when restoring a
	// super-index at mount.
	SetAreaMap(areas []types.Area)

	// PhysicalPage derives the absolute page number backing (pos, pageOffset).
	PhysicalPage(pos types.AreaPos, pageOffset uint32) uint64

	// PhysicalBlockRange returns the [first, last) absolute block range
	// currently backing pos.
	PhysicalBlockRange(pos types.AreaPos) (uint64, uint64)

	// ClosedAreasOfType returns every closed area of type t, used by GC
	// victim selection.
	ClosedAreasOfType(t types.AreaType) []types.AreaPos

	// ClaimEmptyUnsetArea returns the lowest-erase-count area that is
	// empty and has no type assigned yet, without mutating it. GC uses
	// this once, at bootstrap, to requisition its reserved garbage
	// buffer; ordinary allocation uses FindWritableArea instead.
	ClaimEmptyUnsetArea() (types.AreaPos, bool)

	// GarbageBufferArea returns the area currently reserved as GC's
	// scratch buffer, if one has been requisitioned yet.
	GarbageBufferArea() (types.AreaPos, bool)

	// MarkAsGarbageBuffer converts an empty, unassigned area into the
	// reserved garbage buffer (type changes, status stays empty).
	MarkAsGarbageBuffer(pos types.AreaPos) error

	// Reactivate flips a closed area back to active under its existing
	// type, used by GC once it has reclaimed space in pos.
	Reactivate(pos types.AreaPos) error
}
