package interfaces

import "github.com/cirromulus/paffs-go/internal/types"

// SummaryCache caches and persists per-area page-status bitmaps
// (component C).
type SummaryCache interface {
	// GetPageStatus returns the liveness of the page at addr.
	GetPageStatus(addr types.Addr) (types.PageStatus, error)

	// SetPageStatus sets the page at addr to the given status, marks its
	// area's cached entry dirty, and clears any loaded-from-super-page
	// flag on it.
	SetPageStatus(addr types.Addr, status types.PageStatus) error

	// Commit writes area's packed bitmap to its reserved OOB summary
	// pages and marks it as-written.
	Commit(area types.AreaPos) error

	// DeleteSummary drops area's cached entry without writing, used
	// once an area has been fully erased by GC.
	DeleteSummary(area types.AreaPos) error

	// LoadAreaSummary loads (from flash, or from a super-index's
	// compact snapshot) the summary for area into the cache.
	LoadAreaSummary(area types.AreaPos) error

	// ActiveAreaSummary returns the in-memory summary for an area
	// currently active for some type, used by the superblock chain to
	// build its compact per-active-area snapshot.
	ActiveAreaSummary(area types.AreaPos) (*types.SummaryEntry, bool)

	// FreePageCount reports how many pages in area are still free,
	// loading the area's summary first if it isn't cached.
	FreePageCount(area types.AreaPos) (int, error)

	// FindFreePage returns the offset of a free page in area, or false
	// if the area has none.
	FindFreePage(area types.AreaPos) (uint32, bool, error)

	// DirtyPageCount reports how many pages in area are dirty, used by
	// the garbage collector to pick a victim.
	DirtyPageCount(area types.AreaPos) (int, error)

	// IsFullyDirty reports whether every page in area is dirty.
	IsFullyDirty(area types.AreaPos) (bool, error)
}
