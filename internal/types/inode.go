package types

import "time"

// InodeNo is the unique 32-bit identifier of an inode, and the B⁺-tree's
// key type.
type InodeNo uint32

// NoInodeNo marks "no inode" (root's parent, free-list terminator).
const NoInodeNo InodeNo = 0

// InodeType is the kind of filesystem object an inode describes.
type InodeType uint8

const (
	InodeTypeFile InodeType = iota
	InodeTypeDir
	InodeTypeLnk
)

// DirectAddrs is the number of direct page addresses kept in an inode
// before falling back to single/double/triple indirection.
const DirectAddrs = 11

// Inode is the metadata record the B⁺-tree indexes by InodeNo. Reserved
// is the count of flash pages currently reserved for the file's data
// (direct + indirect). Reserved*dataBytesPerPage >= Size holds for a file
// written without gaps; a write that starts past the end leaves the
// skipped pages unallocated and uncounted, so for such a file Reserved
// can fall short of Size.
type Inode struct {
	No          InodeNo
	Type        InodeType
	Perm        uint8 // 3-bit permission mask
	Reserved    uint32
	Size        uint64
	Created     time.Time
	Modified    time.Time
	Direct      [DirectAddrs]Addr
	Indirect    Addr
	DIndirect   Addr
	TIndirect   Addr
}

// InodeOnFlashSize is the fixed on-flash encoding size of one Inode,
// used to compute the B⁺-tree's leaf order.
const InodeOnFlashSize = 4 /*No*/ + 1 /*Type*/ + 1 /*Perm*/ + 4 /*Reserved*/ +
	8 /*Size*/ + 8 /*Created*/ + 8 /*Modified*/ +
	DirectAddrs*AddrSize + 3*AddrSize

// MarshalBinary encodes the inode in the fixed little-endian layout used
// on flash and in B⁺-tree leaves.
func (n *Inode) MarshalBinary() []byte {
	buf := make([]byte, InodeOnFlashSize)
	off := 0
	putU32(buf[off:], uint32(n.No))
	off += 4
	buf[off] = byte(n.Type)
	off++
	buf[off] = n.Perm
	off++
	putU32(buf[off:], n.Reserved)
	off += 4
	putU64(buf[off:], n.Size)
	off += 8
	putU64(buf[off:], uint64(n.Created.UnixNano()))
	off += 8
	putU64(buf[off:], uint64(n.Modified.UnixNano()))
	off += 8
	for _, a := range n.Direct {
		PutAddr(buf[off:], a)
		off += AddrSize
	}
	PutAddr(buf[off:], n.Indirect)
	off += AddrSize
	PutAddr(buf[off:], n.DIndirect)
	off += AddrSize
	PutAddr(buf[off:], n.TIndirect)
	off += AddrSize
	return buf
}

// UnmarshalInode decodes an Inode previously produced by MarshalBinary.
func UnmarshalInode(buf []byte) Inode {
	var n Inode
	off := 0
	n.No = InodeNo(getU32(buf[off:]))
	off += 4
	n.Type = InodeType(buf[off])
	off++
	n.Perm = buf[off]
	off++
	n.Reserved = getU32(buf[off:])
	off += 4
	n.Size = getU64(buf[off:])
	off += 8
	n.Created = time.Unix(0, int64(getU64(buf[off:])))
	off += 8
	n.Modified = time.Unix(0, int64(getU64(buf[off:])))
	off += 8
	for i := range n.Direct {
		n.Direct[i] = GetAddr(buf[off:])
		off += AddrSize
	}
	n.Indirect = GetAddr(buf[off:])
	off += AddrSize
	n.DIndirect = GetAddr(buf[off:])
	off += AddrSize
	n.TIndirect = GetAddr(buf[off:])
	return n
}

// ReservedSatisfiesSize reports whether the reserved-page invariant holds
// given the page size in bytes.
func (n *Inode) ReservedSatisfiesSize(dataBytesPerPage uint32) bool {
	return uint64(n.Reserved)*uint64(dataBytesPerPage) >= n.Size
}
