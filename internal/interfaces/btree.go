package interfaces

import "github.com/cirromulus/paffs-go/internal/types"

// Tree is the B⁺-tree of inodes, with its cache and copy-on-write
// writeback folded into the same interface (component E).
type Tree interface {
	// InsertInode adds a new inode. It refuses duplicates: the index
	// assigns unique InodeNos via FindFirstFreeNo, so an explicit
	// duplicate No is a caller bug.
	InsertInode(n types.Inode) error

	// GetInode looks up no and reports whether it was found.
	GetInode(no types.InodeNo) (types.Inode, bool, error)

	// UpdateInode rewrites an existing inode's record.
	UpdateInode(n types.Inode) error

	// DeleteInode removes no from the tree.
	DeleteInode(no types.InodeNo) error

	// FindFirstFreeNo returns max(existing)+1, or 1 if the tree is
	// empty.
	FindFirstFreeNo() (types.InodeNo, error)

	// RootAddr returns the current root node's flash address, to be
	// registered with the superblock chain.
	RootAddr() types.Addr

	// Flush re-serialises every dirty cached node and returns the new
	// root address.
	Flush() (types.Addr, error)

	// LoadRoot re-anchors the cache at the given on-flash root, used
	// during mount/replay.
	LoadRoot(root types.Addr) error
}
