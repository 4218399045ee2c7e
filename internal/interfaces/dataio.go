package interfaces

import "github.com/cirromulus/paffs-go/internal/types"

// DataIO translates (inode, file-offset, length) into (area, page) reads
// and writes via the page-address cache (component G).
type DataIO interface {
	// WriteInodeData writes buf at offset into n's data stream, growing
	// n.Size/n.Reserved as needed, and persists n via the tree.
	WriteInodeData(n *types.Inode, offset uint64, buf []byte) error

	// ReadInodeData reads len(buf) bytes starting at offset, returning
	// the number of bytes actually read (bounded by n.Size); pages with
	// no Addr read as zero.
	ReadInodeData(n *types.Inode, offset uint64, buf []byte) (int, error)

	// Truncate shrinks or grows n to size, releasing any pages beyond
	// the new high-water mark.
	Truncate(n *types.Inode, size uint64) error
}
