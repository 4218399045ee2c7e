package interfaces

import "github.com/cirromulus/paffs-go/internal/types"

// PageAddressCache materialises a single selected inode's direct/single/
// double/triple indirection tree, with dirty-writeback (component F).
type PageAddressCache interface {
	// SetTargetInode flushes any dirty paths for the previously
	// selected inode and switches to node.
	SetTargetInode(node *types.Inode) error

	// GetPage resolves a file page number to its flash Addr, loading
	// whatever indirection levels are needed.
	GetPage(pageNo uint64) (types.Addr, error)

	// SetPage records addr as the location of pageNo, marking the
	// owning levels dirty.
	SetPage(pageNo uint64, addr types.Addr) error

	// DeletePage clears pages [from, to), used by truncate.
	DeletePage(from, to uint64) error

	// Commit rewrites every dirty level copy-on-write and updates the
	// target inode's anchor pointers (and the inode itself, via the
	// tree).
	Commit() error

	// IsDirty reports whether any level has unflushed changes.
	IsDirty() bool
}
