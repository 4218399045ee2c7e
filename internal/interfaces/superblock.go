package interfaces

import "github.com/cirromulus/paffs-go/internal/types"

// SuperIndex is the structure binding the current rootnode Addr to the
// full area map, as scanned or committed by the superblock chain.
type SuperIndex struct {
	Serial       uint64
	Rootnode     types.Addr
	AreaMap      []types.Area
	ActiveAreas  map[types.AreaType]types.AreaPos
	Summaries    map[types.AreaPos]types.SummaryEntry
}

// Superblock persists the root of the tree and the area map through the
// anchor/jump-pad/super-index chain (component H).
type Superblock interface {
	// Scan locates the most recent valid super-index reachable through
	// the anchor/jump-pad chain, as done at mount.
	Scan() (SuperIndex, error)

	// Commit writes a new super-index (serial = last+1) built from the
	// given fields, except that Rootnode is the address last passed to
	// RegisterRootnode, ping-ponging through the anchor/jump-pad areas
	// as needed.
	Commit(idx SuperIndex) error

	// RegisterRootnode records the root address the next Commit writes.
	// The device calls it after each tree flush.
	RegisterRootnode(addr types.Addr)
}
