// Package btree implements the B⁺-tree of inodes and its write-back
// node cache (component E): InsertInode/GetInode/UpdateInode/DeleteInode
// keyed by InodeNo, with copy-on-write flush and a bounded in-memory
// working set.
package btree

import (
	"log/slog"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// Tree implements interfaces.Tree.
type Tree struct {
	param   types.Param
	derived types.Derived
	drv     *driver.Facade
	areas   interfaces.AreaManager
	summary interfaces.SummaryCache
	log     *slog.Logger

	leafOrder   int
	branchOrder int

	root    *node
	nextID  uint64
	loaded  map[types.Addr]*node // resident nodes that have a flash address
	recency []types.Addr         // least-recently-used at front; the root is listed too, and evicting it only drops it from loaded
}

// New creates an empty Tree (a single empty leaf root), used at format
// time.
func New(param types.Param, drv *driver.Facade, areas interfaces.AreaManager, summary interfaces.SummaryCache, log *slog.Logger) *Tree {
	if log == nil {
		log = slog.Default()
	}
	t := &Tree{
		param:       param,
		derived:     param.Compute(),
		drv:         drv,
		areas:       areas,
		summary:     summary,
		log:         log,
		leafOrder:   int(param.LeafOrder()),
		// branchOrder is stored as the max separator-key count
		// (branch_order-1 child addrs beyond that would overflow one
		// page), not spec.md's raw branch_order child-addr count.
		branchOrder: int(param.BranchOrder()) - 1,
		loaded:      make(map[types.Addr]*node),
	}
	t.root = t.newNode(true)
	return t
}

func (t *Tree) newNode(isLeaf bool) *node {
	t.nextID++
	return &node{id: t.nextID, isLeaf: isLeaf, dirty: true}
}

// RootAddr implements interfaces.Tree.
func (t *Tree) RootAddr() types.Addr {
	if t.root == nil {
		return types.Addr{}
	}
	return t.root.addr
}

// LoadRoot implements interfaces.Tree.
func (t *Tree) LoadRoot(root types.Addr) error {
	n, err := t.fetch(root)
	if err != nil {
		return err
	}
	t.root = n
	return nil
}

func (t *Tree) touch(n *node) {
	if !n.hasAddr {
		return
	}
	for i, a := range t.recency {
		if a == n.addr {
			t.recency = append(t.recency[:i], t.recency[i+1:]...)
			break
		}
	}
	t.recency = append(t.recency, n.addr)
}

func (t *Tree) fetch(addr types.Addr) (*node, error) {
	if n, ok := t.loaded[addr]; ok {
		t.touch(n)
		return n, nil
	}
	buf := make([]byte, t.param.DataBytesPerPage)
	if err := t.drv.ReadPage(t.areas.PhysicalPage(addr.Area, addr.Page), buf); err != nil {
		return nil, err
	}
	n := decodeNode(buf)
	t.nextID++
	n.id = t.nextID
	n.addr = addr
	n.hasAddr = true
	t.loaded[addr] = n
	t.touch(n)
	t.evictIfNeeded()
	return n, nil
}

// child returns parent.children[i], lazily resolving it from
// childAddrs[i] if it isn't resident.
func (t *Tree) child(parent *node, i int) (*node, error) {
	if parent.children[i] != nil {
		t.touch(parent.children[i])
		return parent.children[i], nil
	}
	n, err := t.fetch(parent.childAddrs[i])
	if err != nil {
		return nil, err
	}
	parent.children[i] = n
	n.parent = parent
	return n, nil
}

// evictIfNeeded flushes and drops resident nodes down to
// TreeNodeCacheSize. A dirty victim is written copy-on-write before
// being dropped; since that write happens outside its parent's own
// flush, the parent's childAddrs entry is stale until this repoints it
// and marks the parent dirty in turn, so the new location survives the
// parent's next flush instead of being silently orphaned (and its old
// page reclaimed by GC while still referenced).
func (t *Tree) evictIfNeeded() {
	limit := int(t.param.TreeNodeCacheSize)
	for limit > 0 && len(t.loaded) > limit {
		oldAddr := t.recency[0]
		n := t.loaded[oldAddr]
		t.recency = t.recency[1:]
		delete(t.loaded, oldAddr)

		if n.dirty {
			newAddr, err := t.flushNode(n)
			if err != nil {
				t.log.Error("tree cache eviction flush failed", "err", err)
				return
			}
			// flushNode re-admits n into loaded/recency under its new
			// address on the assumption it stays resident; undo that
			// here since this node is being evicted, not kept.
			delete(t.loaded, newAddr)
			t.removeRecency(newAddr)
			if i, ok := childIndex(n.parent, n); ok {
				n.parent.childAddrs[i] = newAddr
				n.parent.children[i] = nil
				markDirty(n.parent)
			}
		} else if i, ok := childIndex(n.parent, n); ok {
			n.parent.children[i] = nil
		}
	}
}

// childIndex returns the index of child in parent.children, or false if
// parent is nil (child is the tree root) or child is no longer attached
// there.
func childIndex(parent, child *node) (int, bool) {
	if parent == nil {
		return 0, false
	}
	for i, c := range parent.children {
		if c == child {
			return i, true
		}
	}
	return 0, false
}

// markDirty marks n and every ancestor up to the root dirty, stopping
// as soon as it reaches a node already dirty: that node's own ancestors
// must already be marked, by the same invariant applied when it was
// dirtied. Used when a structural change happens below n without going
// through the normal top-down insert/update/delete walk (e.g. an
// evicted node's parent being re-pointed), so Flush's dirty-gated
// recursion still reaches it.
func markDirty(n *node) {
	for p := n; p != nil && !p.dirty; p = p.parent {
		p.dirty = true
	}
}

// removeRecency drops addr's entry from the recency list, if present.
func (t *Tree) removeRecency(addr types.Addr) {
	for i, a := range t.recency {
		if a == addr {
			t.recency = append(t.recency[:i], t.recency[i+1:]...)
			return
		}
	}
}

// allocatePage claims a free page in an index-type area for a
// to-be-written tree node.
func (t *Tree) allocatePage() (types.Addr, error) {
	pos, err := t.areas.FindWritableArea(types.AreaTypeIndex)
	if err != nil {
		return types.Addr{}, err
	}
	off, ok, err := t.summary.FindFreePage(pos)
	if err != nil {
		return types.Addr{}, err
	}
	if !ok {
		return types.Addr{}, types.NewError("btree.allocatePage", types.KindNoSpace, nil)
	}
	addr := types.Addr{Area: pos, Page: off}
	if err := t.summary.SetPageStatus(addr, types.PageUsed); err != nil {
		return types.Addr{}, err
	}
	return addr, nil
}

// flushNode writes n copy-on-write to a freshly allocated page,
// retiring its previous address (if any) as dirty.
func (t *Tree) flushNode(n *node) (types.Addr, error) {
	if !n.isLeaf {
		for i, c := range n.children {
			if c == nil {
				continue
			}
			if c.dirty {
				addr, err := t.flushNode(c)
				if err != nil {
					return types.Addr{}, err
				}
				n.childAddrs[i] = addr
			}
		}
	}
	newAddr, err := t.allocatePage()
	if err != nil {
		return types.Addr{}, err
	}
	if err := t.drv.WritePage(t.areas.PhysicalPage(newAddr.Area, newAddr.Page), n.encode(int(t.param.DataBytesPerPage))); err != nil {
		return types.Addr{}, err
	}
	if n.hasAddr {
		if err := t.summary.SetPageStatus(n.addr, types.PageDirty); err != nil {
			return types.Addr{}, err
		}
		delete(t.loaded, n.addr)
	}
	n.addr = newAddr
	n.hasAddr = true
	n.dirty = false
	t.loaded[newAddr] = n
	t.touch(n)
	return newAddr, nil
}

// Flush implements interfaces.Tree.
func (t *Tree) Flush() (types.Addr, error) {
	if !t.root.dirty {
		return t.root.addr, nil
	}
	return t.flushNode(t.root)
}

// GetInode implements interfaces.Tree.
func (t *Tree) GetInode(no types.InodeNo) (types.Inode, bool, error) {
	n := t.root
	for !n.isLeaf {
		i := n.childIndex(no)
		child, err := t.child(n, i)
		if err != nil {
			return types.Inode{}, false, err
		}
		n = child
	}
	i, ok := n.leafSearch(no)
	if !ok {
		return types.Inode{}, false, nil
	}
	return n.inodes[i], true, nil
}

// FindFirstFreeNo implements interfaces.Tree. The rightmost leaf always
// holds the tree's maximum key, so max+1 is free without scanning for
// gaps left by deleted inodes (a monotonic allocator, not true reuse).
func (t *Tree) FindFirstFreeNo() (types.InodeNo, error) {
	n := t.root
	for !n.isLeaf {
		child, err := t.child(n, len(n.children)-1)
		if err != nil {
			return 0, err
		}
		n = child
	}
	if len(n.inodes) == 0 {
		return 1, nil
	}
	return n.inodes[len(n.inodes)-1].No + 1, nil
}

// InsertInode implements interfaces.Tree.
func (t *Tree) InsertInode(inode types.Inode) error {
	if _, found, err := t.GetInode(inode.No); err != nil {
		return err
	} else if found {
		return types.NewError("insertInode", types.KindAlreadyExists, nil)
	}
	promoted, right, split, err := t.insert(t.root, inode)
	if err != nil {
		return err
	}
	if split {
		newRoot := t.newNode(false)
		newRoot.seps = []types.InodeNo{promoted}
		newRoot.childAddrs = []types.Addr{{}, {}}
		newRoot.children = []*node{t.root, right}
		t.root.parent = newRoot
		right.parent = newRoot
		t.root = newRoot
	}
	return nil
}

func (t *Tree) insert(n *node, inode types.Inode) (types.InodeNo, *node, bool, error) {
	if n.isLeaf {
		i, _ := n.leafSearch(inode.No)
		n.inodes = append(n.inodes, types.Inode{})
		copy(n.inodes[i+1:], n.inodes[i:])
		n.inodes[i] = inode
		n.dirty = true
		if len(n.inodes) <= t.leafOrder {
			return 0, nil, false, nil
		}
		mid := len(n.inodes) / 2
		right := t.newNode(true)
		right.inodes = append([]types.Inode{}, n.inodes[mid:]...)
		n.inodes = n.inodes[:mid]
		return right.inodes[0].No, right, true, nil
	}

	i := n.childIndex(inode.No)
	child, err := t.child(n, i)
	if err != nil {
		return 0, nil, false, err
	}
	promoted, right, split, err := t.insert(child, inode)
	if err != nil {
		return 0, nil, false, err
	}
	// Mark every branch on the descent path dirty, split or not: its
	// child subtree changed, so it must be rewritten on the next flush
	// even when no separator needs to move at this level.
	n.dirty = true
	if !split {
		return 0, nil, false, nil
	}
	n.seps = append(n.seps, 0)
	copy(n.seps[i+1:], n.seps[i:])
	n.seps[i] = promoted
	n.childAddrs = append(n.childAddrs, types.Addr{})
	copy(n.childAddrs[i+2:], n.childAddrs[i+1:])
	n.children = append(n.children, nil)
	copy(n.children[i+2:], n.children[i+1:])
	n.children[i+1] = right
	n.childAddrs[i+1] = right.addr
	right.parent = n

	if len(n.seps) <= t.branchOrder {
		return 0, nil, false, nil
	}
	mid := len(n.seps) / 2
	promotedUp := n.seps[mid]
	rightBranch := t.newNode(false)
	rightBranch.seps = append([]types.InodeNo{}, n.seps[mid+1:]...)
	rightBranch.childAddrs = append([]types.Addr{}, n.childAddrs[mid+1:]...)
	rightBranch.children = append([]*node{}, n.children[mid+1:]...)
	for _, c := range rightBranch.children {
		if c != nil {
			c.parent = rightBranch
		}
	}
	n.seps = n.seps[:mid]
	n.childAddrs = n.childAddrs[:mid+1]
	n.children = n.children[:mid+1]
	return promotedUp, rightBranch, true, nil
}

// UpdateInode implements interfaces.Tree.
func (t *Tree) UpdateInode(inode types.Inode) error {
	n := t.root
	var path []*node
	for !n.isLeaf {
		path = append(path, n)
		i := n.childIndex(inode.No)
		child, err := t.child(n, i)
		if err != nil {
			return err
		}
		n = child
	}
	i, ok := n.leafSearch(inode.No)
	if !ok {
		return types.NewError("updateInode", types.KindNotFound, nil)
	}
	n.inodes[i] = inode
	n.dirty = true
	// The leaf changed, so every branch on the path down to it must be
	// rewritten on the next flush too, same as insert/delete.
	for _, p := range path {
		p.dirty = true
	}
	return nil
}

const minFillRatio = 2 // minimum fill is order/minFillRatio

// DeleteInode implements interfaces.Tree.
func (t *Tree) DeleteInode(no types.InodeNo) error {
	_, err := t.delete(t.root, no)
	if err != nil {
		return err
	}
	if !t.root.isLeaf && len(t.root.children) == 1 {
		child, err := t.child(t.root, 0)
		if err != nil {
			return err
		}
		child.parent = nil
		t.root = child
	}
	return nil
}

// delete removes no from the subtree rooted at n, returning whether n
// is now underfull (the caller, if a branch, must borrow or merge).
func (t *Tree) delete(n *node, no types.InodeNo) (bool, error) {
	if n.isLeaf {
		i, ok := n.leafSearch(no)
		if !ok {
			return false, types.NewError("deleteInode", types.KindNotFound, nil)
		}
		n.inodes = append(n.inodes[:i], n.inodes[i+1:]...)
		n.dirty = true
		return len(n.inodes) < t.leafOrder/minFillRatio, nil
	}

	i := n.childIndex(no)
	child, err := t.child(n, i)
	if err != nil {
		return false, err
	}
	underfull, err := t.delete(child, no)
	if err != nil {
		return false, err
	}
	n.dirty = true
	if !underfull {
		return false, nil
	}
	if err := t.fixUnderfull(n, i); err != nil {
		return false, err
	}
	return len(n.seps) < t.branchOrder/minFillRatio, nil
}

// fixUnderfull repairs n.children[i] by borrowing from an adjacent
// sibling, or merging with one when neither sibling has spare capacity.
func (t *Tree) fixUnderfull(n *node, i int) error {
	child, err := t.child(n, i)
	if err != nil {
		return err
	}
	if i > 0 {
		left, err := t.child(n, i-1)
		if err != nil {
			return err
		}
		if canLend(left, t.leafOrder, t.branchOrder) {
			borrowFromLeft(n, i, left, child)
			return nil
		}
	}
	if i < len(n.children)-1 {
		right, err := t.child(n, i+1)
		if err != nil {
			return err
		}
		if canLend(right, t.leafOrder, t.branchOrder) {
			borrowFromRight(n, i, child, right)
			return nil
		}
	}
	if i > 0 {
		left, err := t.child(n, i-1)
		if err != nil {
			return err
		}
		mergeChildren(n, i-1, left, child)
		return nil
	}
	right, err := t.child(n, i+1)
	if err != nil {
		return err
	}
	mergeChildren(n, i, child, right)
	return nil
}

func canLend(n *node, leafOrder, branchOrder int) bool {
	if n.isLeaf {
		return len(n.inodes) > leafOrder/minFillRatio
	}
	return len(n.seps) > branchOrder/minFillRatio
}

func borrowFromLeft(parent *node, i int, left, right *node) {
	if right.isLeaf {
		borrowed := left.inodes[len(left.inodes)-1]
		left.inodes = left.inodes[:len(left.inodes)-1]
		right.inodes = append([]types.Inode{borrowed}, right.inodes...)
		parent.seps[i-1] = right.inodes[0].No
	} else {
		sep := parent.seps[i-1]
		right.seps = append([]types.InodeNo{sep}, right.seps...)
		parent.seps[i-1] = left.seps[len(left.seps)-1]
		left.seps = left.seps[:len(left.seps)-1]

		movedAddr := left.childAddrs[len(left.childAddrs)-1]
		movedChild := left.children[len(left.children)-1]
		left.childAddrs = left.childAddrs[:len(left.childAddrs)-1]
		left.children = left.children[:len(left.children)-1]
		right.childAddrs = append([]types.Addr{movedAddr}, right.childAddrs...)
		right.children = append([]*node{movedChild}, right.children...)
		if movedChild != nil {
			movedChild.parent = right
		}
	}
	left.dirty = true
	right.dirty = true
}

func borrowFromRight(parent *node, i int, left, right *node) {
	if left.isLeaf {
		borrowed := right.inodes[0]
		right.inodes = right.inodes[1:]
		left.inodes = append(left.inodes, borrowed)
		parent.seps[i] = right.inodes[0].No
	} else {
		sep := parent.seps[i]
		left.seps = append(left.seps, sep)
		parent.seps[i] = right.seps[0]
		right.seps = right.seps[1:]

		movedAddr := right.childAddrs[0]
		movedChild := right.children[0]
		right.childAddrs = right.childAddrs[1:]
		right.children = right.children[1:]
		left.childAddrs = append(left.childAddrs, movedAddr)
		left.children = append(left.children, movedChild)
		if movedChild != nil {
			movedChild.parent = left
		}
	}
	left.dirty = true
	right.dirty = true
}

// mergeChildren folds parent.children[i+1] into parent.children[i] and
// removes the separator between them.
func mergeChildren(parent *node, i int, left, right *node) {
	if left.isLeaf {
		left.inodes = append(left.inodes, right.inodes...)
	} else {
		left.seps = append(left.seps, parent.seps[i])
		left.seps = append(left.seps, right.seps...)
		left.childAddrs = append(left.childAddrs, right.childAddrs...)
		left.children = append(left.children, right.children...)
		for _, c := range right.children {
			if c != nil {
				c.parent = left
			}
		}
	}
	left.dirty = true
	parent.seps = append(parent.seps[:i], parent.seps[i+1:]...)
	parent.childAddrs = append(parent.childAddrs[:i+1], parent.childAddrs[i+2:]...)
	parent.children = append(parent.children[:i+1], parent.children[i+2:]...)
}
