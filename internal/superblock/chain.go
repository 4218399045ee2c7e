// Package superblock implements the superblock chain (component H): an
// anchor page ping-pongs between the first two blocks of area 0,
// pointing through a configurable run of jump pads to a super-index
// carrying the tree's root address and a full area-map snapshot.
package superblock

import (
	"encoding/binary"
	"hash/crc32"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cirromulus/paffs-go/internal/driver"
	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

const superblockArea = types.AreaPos(0)

// anchor is the fixed-size root of the chain: a flash version, the
// filesystem UUID the image was formatted with, the address of the
// first jump pad (or the super-index directly, when jumpPadNo is 0),
// and a CRC32 over the preceding bytes. The UUID round-trips Param's
// FilesystemUUID so Scan can reject an anchor belonging to a different,
// stale image sharing the same backing file.
type anchor struct {
	sequence     uint64
	flashVersion uint32
	fsUUID       uuid.UUID
	next         types.Addr
}

const anchorSize = 8 + 4 + 16 + types.AddrSize + 4 // +4 for the trailing CRC

func (a anchor) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], a.sequence)
	binary.LittleEndian.PutUint32(buf[8:12], a.flashVersion)
	copy(buf[12:28], a.fsUUID[:])
	types.PutAddr(buf[28:28+types.AddrSize], a.next)
	crc := crc32.ChecksumIEEE(buf[0 : 28+types.AddrSize])
	binary.LittleEndian.PutUint32(buf[28+types.AddrSize:anchorSize], crc)
}

func decodeAnchor(buf []byte) (anchor, bool) {
	var a anchor
	if len(buf) < anchorSize {
		return a, false
	}
	crc := crc32.ChecksumIEEE(buf[0 : 28+types.AddrSize])
	if binary.LittleEndian.Uint32(buf[28+types.AddrSize:anchorSize]) != crc {
		return a, false
	}
	a.sequence = binary.LittleEndian.Uint64(buf[0:8])
	a.flashVersion = binary.LittleEndian.Uint32(buf[8:12])
	copy(a.fsUUID[:], buf[12:28])
	a.next = types.GetAddr(buf[28 : 28+types.AddrSize])
	return a, true
}

// jumpPad just carries the address of the next pad, or of the
// super-index for the innermost one.
type jumpPad struct {
	next types.Addr
}

const jumpPadSize = types.AddrSize + 4

func (p jumpPad) encode(buf []byte) {
	types.PutAddr(buf[0:types.AddrSize], p.next)
	crc := crc32.ChecksumIEEE(buf[0:types.AddrSize])
	binary.LittleEndian.PutUint32(buf[types.AddrSize:jumpPadSize], crc)
}

func decodeJumpPad(buf []byte) (jumpPad, bool) {
	var p jumpPad
	if len(buf) < jumpPadSize {
		return p, false
	}
	crc := crc32.ChecksumIEEE(buf[0:types.AddrSize])
	if binary.LittleEndian.Uint32(buf[types.AddrSize:jumpPadSize]) != crc {
		return p, false
	}
	p.next = types.GetAddr(buf[0:types.AddrSize])
	return p, true
}

// Chain implements interfaces.Superblock.
type Chain struct {
	param   types.Param
	derived types.Derived
	drv     *driver.Facade
	areas   interfaces.AreaManager
	summary interfaces.SummaryCache
	log     *slog.Logger

	activeBlock uint32 // 0 or 1, relative to area 0's block range
	cursor      uint32 // next free page offset within activeBlock
	lastSerial  uint64
	pendingRoot types.Addr
	haveFormat  bool
}

// New creates a Chain. Format must be called once, at filesystem
// format time, before the first Commit.
func New(param types.Param, drv *driver.Facade, areas interfaces.AreaManager, summary interfaces.SummaryCache, log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{
		param:   param,
		derived: param.Compute(),
		drv:     drv,
		areas:   areas,
		summary: summary,
		log:     log,
	}
}

// Format claims area 0 for the superblock chain. Only called once, at
// paffs.Format time.
func (c *Chain) Format() error {
	if err := c.areas.InitArea(superblockArea, types.AreaTypeSuperblock); err != nil {
		return err
	}
	c.haveFormat = true
	return nil
}

func (c *Chain) pagesPerGeneration(siPages int) uint32 {
	return uint32(siPages) + c.param.JumpPadNo + 1 /* anchor */
}

// RegisterRootnode implements interfaces.Superblock.
func (c *Chain) RegisterRootnode(addr types.Addr) {
	c.pendingRoot = addr
}

func (c *Chain) nextPageAddr() (types.Addr, error) {
	if c.cursor >= c.param.PagesPerBlock {
		return types.Addr{}, types.NewError("superblock.nextPageAddr", types.KindNoSpace, nil)
	}
	page := c.activeBlock*c.param.PagesPerBlock + c.cursor
	c.cursor++
	return types.Addr{Area: superblockArea, Page: page}, nil
}

func (c *Chain) writePage(addr types.Addr, payload []byte) error {
	buf := make([]byte, c.param.DataBytesPerPage)
	copy(buf, payload)
	return c.drv.WritePage(c.areas.PhysicalPage(addr.Area, addr.Page), buf)
}

func (c *Chain) readPage(addr types.Addr) ([]byte, error) {
	buf := make([]byte, c.param.DataBytesPerPage)
	if err := c.drv.ReadPage(c.areas.PhysicalPage(addr.Area, addr.Page), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// switchBlock erases the other of area 0's two ping-pong blocks and
// makes it the active one, per spec.md §4.8's write policy.
func (c *Chain) switchBlock() error {
	other := uint32(1) - c.activeBlock
	first, _ := c.areas.PhysicalBlockRange(superblockArea)
	if err := c.drv.EraseBlock(first + uint64(other)); err != nil {
		return err
	}
	c.activeBlock = other
	c.cursor = 0
	return nil
}

// Commit implements interfaces.Superblock.
func (c *Chain) Commit(idx interfaces.SuperIndex) error {
	idx.Serial = c.lastSerial + 1
	idx.Rootnode = c.pendingRoot
	siPages, err := encodeSuperIndex(idx, int(c.param.DataBytesPerPage))
	if err != nil {
		return err
	}

	if c.cursor+c.pagesPerGeneration(len(siPages)) > c.param.PagesPerBlock {
		if err := c.switchBlock(); err != nil {
			return err
		}
	}

	var siAddr types.Addr
	for i, page := range siPages {
		addr, err := c.nextPageAddr()
		if err != nil {
			return err
		}
		if i == 0 {
			siAddr = addr
		}
		if err := c.writePage(addr, page); err != nil {
			return err
		}
	}

	next := siAddr
	pads := make([]jumpPad, c.param.JumpPadNo)
	addrs := make([]types.Addr, c.param.JumpPadNo)
	for i := int(c.param.JumpPadNo) - 1; i >= 0; i-- {
		addr, err := c.nextPageAddr()
		if err != nil {
			return err
		}
		pads[i] = jumpPad{next: next}
		addrs[i] = addr
		next = addr
	}
	for i, p := range pads {
		buf := make([]byte, jumpPadSize)
		p.encode(buf)
		if err := c.writePage(addrs[i], buf); err != nil {
			return err
		}
	}

	anchorAddr, err := c.nextPageAddr()
	if err != nil {
		return err
	}
	a := anchor{sequence: idx.Serial, flashVersion: 1, fsUUID: c.param.FilesystemUUID, next: next}
	abuf := make([]byte, anchorSize)
	a.encode(abuf)
	if err := c.writePage(anchorAddr, abuf); err != nil {
		return err
	}

	c.lastSerial = idx.Serial
	c.log.Debug("superblock committed", "serial", idx.Serial, "block", c.activeBlock)
	return nil
}

// Scan implements interfaces.Superblock.
func (c *Chain) Scan() (interfaces.SuperIndex, error) {
	var best anchor
	var bestAddr types.Addr
	found := false

	for block := uint32(0); block < 2; block++ {
		for page := uint32(0); page < c.param.PagesPerBlock; page++ {
			addr := types.Addr{Area: superblockArea, Page: block*c.param.PagesPerBlock + page}
			buf, err := c.readPage(addr)
			if err != nil {
				continue
			}
			a, ok := decodeAnchor(buf)
			if !ok || a.fsUUID != c.param.FilesystemUUID {
				continue
			}
			if !found || a.sequence > best.sequence ||
				(a.sequence == best.sequence && addr.Page > bestAddr.Page) {
				best = a
				bestAddr = addr
				found = true
			}
		}
	}
	if !found {
		return interfaces.SuperIndex{}, types.NewError("superblock.Scan", types.KindNotFound, nil)
	}

	c.lastSerial = best.sequence
	c.activeBlock = bestAddr.Page / c.param.PagesPerBlock
	c.cursor = bestAddr.Page%c.param.PagesPerBlock + 1

	next := best.next
	for i := uint32(0); i < c.param.JumpPadNo; i++ {
		buf, err := c.readPage(next)
		if err != nil {
			return interfaces.SuperIndex{}, err
		}
		p, ok := decodeJumpPad(buf)
		if !ok {
			return interfaces.SuperIndex{}, types.NewError("superblock.Scan", types.KindBadFlash, nil)
		}
		next = p.next
	}
	var flat []byte
	page := next
	for {
		buf, err := c.readPage(page)
		if err != nil {
			return interfaces.SuperIndex{}, err
		}
		payload, more, ok := decodeSuperIndexPage(buf)
		if !ok {
			return interfaces.SuperIndex{}, types.NewError("superblock.Scan", types.KindBadFlash, nil)
		}
		flat = append(flat, payload...)
		if !more {
			break
		}
		page = types.Addr{Area: page.Area, Page: page.Page + 1}
	}

	idx, err := unflattenSuperIndex(flat)
	if err != nil {
		return interfaces.SuperIndex{}, err
	}
	c.pendingRoot = idx.Rootnode
	return idx, nil
}
