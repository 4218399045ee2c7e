package btree

import (
	"encoding/binary"

	"github.com/cirromulus/paffs-go/internal/types"
)

// node is one in-memory B⁺-tree node. Leaves hold inodes directly;
// branches route by separator key. Per the resolved Open Question in
// SPEC_FULL.md, leaves are not sibling-linked: there is no
// range-scanning operation over inode numbers that would need it, only
// point lookups by InodeNo.
type node struct {
	id     uint64
	isLeaf bool

	addr    types.Addr
	hasAddr bool
	dirty   bool

	// parent is nil for the tree root; otherwise it is the resident
	// branch node holding this node in its children slice, used to
	// re-point a stale childAddrs entry when this node is relocated by
	// a copy-on-write flush that isn't part of its parent's own flush
	// (e.g. cache eviction).
	parent *node

	// leaf
	inodes []types.Inode

	// branch: len(children) == len(childAddrs) == len(seps)+1.
	// children[i] is nil when not resident; load it via childAddrs[i].
	seps       []types.InodeNo
	childAddrs []types.Addr
	children   []*node
}

func (n *node) maxKey() types.InodeNo {
	if n.isLeaf {
		return n.inodes[len(n.inodes)-1].No
	}
	return n.seps[len(n.seps)-1] // approximate upper bound; exact max lives in the rightmost child
}

// encode serialises n in the little-endian layout described in
// SPEC_FULL.md §11: a kind byte, a count, then either packed inode
// records (leaf) or child addresses followed by separator keys
// (branch).
func (n *node) encode(pageBytes int) []byte {
	buf := make([]byte, pageBytes)
	if n.isLeaf {
		buf[0] = 0
		binary.LittleEndian.PutUint32(buf[1:5], uint32(len(n.inodes)))
		off := 5
		for _, inode := range n.inodes {
			copy(buf[off:], inode.MarshalBinary())
			off += types.InodeOnFlashSize
		}
		return buf
	}
	buf[0] = 1
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(n.seps)))
	off := 5
	for _, a := range n.childAddrs {
		types.PutAddr(buf[off:], a)
		off += types.AddrSize
	}
	for _, k := range n.seps {
		binary.LittleEndian.PutUint32(buf[off:], uint32(k))
		off += 4
	}
	return buf
}

// decodeNode reverses encode.
func decodeNode(buf []byte) *node {
	n := &node{}
	if buf[0] == 0 {
		n.isLeaf = true
		count := binary.LittleEndian.Uint32(buf[1:5])
		off := 5
		n.inodes = make([]types.Inode, count)
		for i := range n.inodes {
			n.inodes[i] = types.UnmarshalInode(buf[off:])
			off += types.InodeOnFlashSize
		}
		return n
	}
	count := binary.LittleEndian.Uint32(buf[1:5])
	off := 5
	n.childAddrs = make([]types.Addr, count+1)
	for i := range n.childAddrs {
		n.childAddrs[i] = types.GetAddr(buf[off:])
		off += types.AddrSize
	}
	n.children = make([]*node, count+1)
	n.seps = make([]types.InodeNo, count)
	for i := range n.seps {
		n.seps[i] = types.InodeNo(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	return n
}

// childIndex returns which child of a branch node covers key.
func (n *node) childIndex(key types.InodeNo) int {
	i := 0
	for i < len(n.seps) && key >= n.seps[i] {
		i++
	}
	return i
}

// leafSearch returns the index of key in a leaf, or the index it
// should be inserted at plus false.
func (n *node) leafSearch(key types.InodeNo) (int, bool) {
	lo, hi := 0, len(n.inodes)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.inodes[mid].No < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(n.inodes) && n.inodes[lo].No == key {
		return lo, true
	}
	return lo, false
}
