package interfaces

import "github.com/cirromulus/paffs-go/internal/types"

// GCMode distinguishes the common path (a reserved garbage buffer exists)
// from desperate mode, where GC must find a fully-dirty victim with no
// spare area to copy into.
type GCMode uint8

const (
	GCNormal GCMode = iota
	GCDesperate
)

// GarbageCollector reclaims space by relocating live pages out of a
// victim area and erasing it (component D).
type GarbageCollector interface {
	// CollectGarbage runs one GC pass targeting the given area type and
	// returns the mode it operated in.
	CollectGarbage(target types.AreaType) (GCMode, error)
}
