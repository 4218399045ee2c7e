// Package pac implements the page-address cache (component F): the
// direct/single/double/triple indirection addressing of one selected
// inode's data pages, with copy-on-write commit back through the tree.
package pac

import (
	"log/slog"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// block is one indirection-level page: a flat array of addrsPerPage
// page addresses.
type block struct {
	addr    types.Addr
	hasAddr bool
	dirty   bool
	entries []types.Addr
}

// Cache implements interfaces.PageAddressCache.
type Cache struct {
	param   types.Param
	derived types.Derived
	drv     *driver.Facade
	areas   interfaces.AreaManager
	summary interfaces.SummaryCache
	tree    interfaces.Tree
	log     *slog.Logger

	target      *types.Inode
	targetDirty bool

	single *block

	doubleTop *block
	doubleSub map[uint32]*block

	tripleTop  *block
	tripleMid  map[uint32]*block
	tripleLeaf map[[2]uint32]*block
}

// New creates a Cache with no target inode selected.
func New(param types.Param, drv *driver.Facade, areas interfaces.AreaManager, summary interfaces.SummaryCache, tree interfaces.Tree, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		param:      param,
		derived:    param.Compute(),
		drv:        drv,
		areas:      areas,
		summary:    summary,
		tree:       tree,
		log:        log,
		doubleSub:  make(map[uint32]*block),
		tripleMid:  make(map[uint32]*block),
		tripleLeaf: make(map[[2]uint32]*block),
	}
}

// SetTargetInode implements interfaces.PageAddressCache.
func (c *Cache) SetTargetInode(n *types.Inode) error {
	if c.target != nil && c.IsDirty() {
		if err := c.Commit(); err != nil {
			return err
		}
	}
	c.target = n
	c.targetDirty = false
	c.single = nil
	c.doubleTop = nil
	c.doubleSub = make(map[uint32]*block)
	c.tripleTop = nil
	c.tripleMid = make(map[uint32]*block)
	c.tripleLeaf = make(map[[2]uint32]*block)
	return nil
}

func (c *Cache) readBlock(addr types.Addr) (*block, error) {
	buf := make([]byte, c.param.DataBytesPerPage)
	if err := c.drv.ReadPage(c.areas.PhysicalPage(addr.Area, addr.Page), buf); err != nil {
		return nil, err
	}
	entries := make([]types.Addr, c.derived.AddrsPerPage)
	for i := range entries {
		e := types.GetAddr(buf[i*types.AddrSize:])
		if !e.Empty() && !c.plausible(e) {
			return nil, types.NewError("pac.readBlock", types.KindBadFlash, nil)
		}
		entries[i] = e
	}
	return &block{addr: addr, hasAddr: true, entries: entries}, nil
}

// plausible reports whether addr names an area/page within the device's
// bounds, used to reject a corrupted indirection entry instead of
// forwarding it to a physical read.
func (c *Cache) plausible(addr types.Addr) bool {
	return uint32(addr.Area) < c.derived.AreasNo && addr.Page < c.derived.DataPagesPerArea
}

func (c *Cache) newBlock() *block {
	return &block{dirty: true, entries: make([]types.Addr, c.derived.AddrsPerPage)}
}

func (c *Cache) allocatePage() (types.Addr, error) {
	pos, err := c.areas.FindWritableArea(types.AreaTypeData)
	if err != nil {
		return types.Addr{}, err
	}
	off, ok, err := c.summary.FindFreePage(pos)
	if err != nil {
		return types.Addr{}, err
	}
	if !ok {
		return types.Addr{}, types.NewError("pac.allocatePage", types.KindNoSpace, nil)
	}
	addr := types.Addr{Area: pos, Page: off}
	if err := c.summary.SetPageStatus(addr, types.PageUsed); err != nil {
		return types.Addr{}, err
	}
	return addr, nil
}

func (c *Cache) flushBlock(b *block) (types.Addr, error) {
	buf := make([]byte, c.param.DataBytesPerPage)
	for i, a := range b.entries {
		types.PutAddr(buf[i*types.AddrSize:], a)
	}
	newAddr, err := c.allocatePage()
	if err != nil {
		return types.Addr{}, err
	}
	if err := c.drv.WritePage(c.areas.PhysicalPage(newAddr.Area, newAddr.Page), buf); err != nil {
		return types.Addr{}, err
	}
	if b.hasAddr {
		if err := c.summary.SetPageStatus(b.addr, types.PageDirty); err != nil {
			return types.Addr{}, err
		}
	}
	b.addr = newAddr
	b.hasAddr = true
	b.dirty = false
	return newAddr, nil
}

// indirection thresholds, computed against the current target.
func (c *Cache) thresholds() (single, double, triple uint64) {
	n := uint64(c.derived.AddrsPerPage)
	single = n
	double = single + n*n
	triple = double + n*n*n
	return
}

// GetPage implements interfaces.PageAddressCache.
func (c *Cache) GetPage(pageNo uint64) (types.Addr, error) {
	if c.target == nil {
		return types.Addr{}, types.NewError("pac.getPage", types.KindInvalidInput, nil)
	}
	if pageNo < types.DirectAddrs {
		return c.target.Direct[pageNo], nil
	}
	pageNo -= types.DirectAddrs
	n := uint64(c.derived.AddrsPerPage)
	singleMax, doubleMax, tripleMax := c.thresholds()

	switch {
	case pageNo < singleMax:
		blk, err := c.ensure(&c.single, c.target.Indirect, false)
		if err != nil {
			return types.Addr{}, err
		}
		return blk.entries[pageNo], nil

	case pageNo < doubleMax:
		idx := pageNo - singleMax
		i1, i2 := idx/n, idx%n
		top, err := c.ensure(&c.doubleTop, c.target.DIndirect, false)
		if err != nil {
			return types.Addr{}, err
		}
		sub, err := c.ensureSub(c.doubleSub, uint32(i1), top, false)
		if err != nil {
			return types.Addr{}, err
		}
		return sub.entries[i2], nil

	case pageNo < tripleMax:
		idx := pageNo - doubleMax
		i1, rem := idx/(n*n), idx%(n*n)
		i2, i3 := rem/n, rem%n
		top, err := c.ensure(&c.tripleTop, c.target.TIndirect, false)
		if err != nil {
			return types.Addr{}, err
		}
		mid, err := c.ensureSub(c.tripleMid, uint32(i1), top, false)
		if err != nil {
			return types.Addr{}, err
		}
		leaf, err := c.ensureLeaf(uint32(i1), uint32(i2), mid, false)
		if err != nil {
			return types.Addr{}, err
		}
		return leaf.entries[i3], nil
	}
	return types.Addr{}, types.NewError("pac.getPage", types.KindInvalidInput, nil)
}

// SetPage implements interfaces.PageAddressCache.
func (c *Cache) SetPage(pageNo uint64, addr types.Addr) error {
	if c.target == nil {
		return types.NewError("pac.setPage", types.KindInvalidInput, nil)
	}
	if pageNo < types.DirectAddrs {
		c.target.Direct[pageNo] = addr
		c.targetDirty = true
		return nil
	}
	pageNo -= types.DirectAddrs
	n := uint64(c.derived.AddrsPerPage)
	singleMax, doubleMax, tripleMax := c.thresholds()

	switch {
	case pageNo < singleMax:
		blk, err := c.ensure(&c.single, c.target.Indirect, true)
		if err != nil {
			return err
		}
		blk.entries[pageNo] = addr
		blk.dirty = true
		return nil

	case pageNo < doubleMax:
		idx := pageNo - singleMax
		i1, i2 := idx/n, idx%n
		top, err := c.ensure(&c.doubleTop, c.target.DIndirect, true)
		if err != nil {
			return err
		}
		sub, err := c.ensureSub(c.doubleSub, uint32(i1), top, true)
		if err != nil {
			return err
		}
		sub.entries[i2] = addr
		sub.dirty = true
		return nil

	case pageNo < tripleMax:
		idx := pageNo - doubleMax
		i1, rem := idx/(n*n), idx%(n*n)
		i2, i3 := rem/n, rem%n
		top, err := c.ensure(&c.tripleTop, c.target.TIndirect, true)
		if err != nil {
			return err
		}
		mid, err := c.ensureSub(c.tripleMid, uint32(i1), top, true)
		if err != nil {
			return err
		}
		leaf, err := c.ensureLeaf(uint32(i1), uint32(i2), mid, true)
		if err != nil {
			return err
		}
		leaf.entries[i3] = addr
		leaf.dirty = true
		return nil
	}
	return types.NewError("pac.setPage", types.KindInvalidInput, nil)
}

// ensure loads *slot from anchor if needed, creating a fresh block when
// anchor is empty. forWrite marks the block dirty (the caller is about
// to mutate a descendant reachable only through it).
func (c *Cache) ensure(slot **block, anchor types.Addr, forWrite bool) (*block, error) {
	if *slot == nil {
		if anchor.Empty() {
			*slot = c.newBlock()
		} else {
			b, err := c.readBlock(anchor)
			if err != nil {
				return nil, err
			}
			*slot = b
		}
	}
	if forWrite {
		(*slot).dirty = true
	}
	return *slot, nil
}

func (c *Cache) ensureSub(cache map[uint32]*block, idx uint32, top *block, forWrite bool) (*block, error) {
	if b, ok := cache[idx]; ok {
		if forWrite {
			b.dirty = true
			top.dirty = true
		}
		return b, nil
	}
	anchor := top.entries[idx]
	var b *block
	if anchor.Empty() {
		b = c.newBlock()
	} else {
		loaded, err := c.readBlock(anchor)
		if err != nil {
			return nil, err
		}
		b = loaded
	}
	cache[idx] = b
	if forWrite {
		top.dirty = true
	}
	return b, nil
}

func (c *Cache) ensureLeaf(midIdx, leafIdx uint32, mid *block, forWrite bool) (*block, error) {
	key := [2]uint32{midIdx, leafIdx}
	if b, ok := c.tripleLeaf[key]; ok {
		if forWrite {
			b.dirty = true
			mid.dirty = true
		}
		return b, nil
	}
	anchor := mid.entries[leafIdx]
	var b *block
	if anchor.Empty() {
		b = c.newBlock()
	} else {
		loaded, err := c.readBlock(anchor)
		if err != nil {
			return nil, err
		}
		b = loaded
	}
	c.tripleLeaf[key] = b
	if forWrite {
		mid.dirty = true
	}
	return b, nil
}

// DeletePage implements interfaces.PageAddressCache: it clears the
// addressing slot for every page in [from, to); the caller is
// responsible for marking the vacated data pages dirty in the summary
// cache, since it already holds the addresses being cleared.
func (c *Cache) DeletePage(from, to uint64) error {
	for i := from; i < to; i++ {
		addr, err := c.GetPage(i)
		if err != nil {
			return err
		}
		if addr.Empty() {
			continue
		}
		if err := c.SetPage(i, types.Addr{}); err != nil {
			return err
		}
	}
	return nil
}

// IsDirty implements interfaces.PageAddressCache.
func (c *Cache) IsDirty() bool {
	if c.targetDirty {
		return true
	}
	if c.single != nil && c.single.dirty {
		return true
	}
	if c.doubleTop != nil && c.doubleTop.dirty {
		return true
	}
	for _, b := range c.doubleSub {
		if b.dirty {
			return true
		}
	}
	if c.tripleTop != nil && c.tripleTop.dirty {
		return true
	}
	for _, b := range c.tripleMid {
		if b.dirty {
			return true
		}
	}
	for _, b := range c.tripleLeaf {
		if b.dirty {
			return true
		}
	}
	return false
}

// Commit implements interfaces.PageAddressCache.
func (c *Cache) Commit() error {
	if c.target == nil || !c.IsDirty() {
		return nil
	}
	if c.single != nil && c.single.dirty {
		addr, err := c.flushBlock(c.single)
		if err != nil {
			return err
		}
		c.target.Indirect = addr
	}
	if err := c.commitDouble(); err != nil {
		return err
	}
	if err := c.commitTriple(); err != nil {
		return err
	}
	c.targetDirty = false
	return c.tree.UpdateInode(*c.target)
}

func (c *Cache) commitDouble() error {
	if c.doubleTop == nil {
		return nil
	}
	for idx, sub := range c.doubleSub {
		if !sub.dirty {
			continue
		}
		addr, err := c.flushBlock(sub)
		if err != nil {
			return err
		}
		c.doubleTop.entries[idx] = addr
		c.doubleTop.dirty = true
	}
	if c.doubleTop.dirty {
		addr, err := c.flushBlock(c.doubleTop)
		if err != nil {
			return err
		}
		c.target.DIndirect = addr
	}
	return nil
}

func (c *Cache) commitTriple() error {
	if c.tripleTop == nil {
		return nil
	}
	for key, leaf := range c.tripleLeaf {
		if !leaf.dirty {
			continue
		}
		addr, err := c.flushBlock(leaf)
		if err != nil {
			return err
		}
		mid, ok := c.tripleMid[key[0]]
		if !ok {
			return types.NewError("pac.commitTriple", types.KindBug, nil)
		}
		mid.entries[key[1]] = addr
		mid.dirty = true
	}
	for idx, mid := range c.tripleMid {
		if !mid.dirty {
			continue
		}
		addr, err := c.flushBlock(mid)
		if err != nil {
			return err
		}
		c.tripleTop.entries[idx] = addr
		c.tripleTop.dirty = true
	}
	if c.tripleTop.dirty {
		addr, err := c.flushBlock(c.tripleTop)
		if err != nil {
			return err
		}
		c.target.TIndirect = addr
	}
	return nil
}
