package superblock

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// flattenSuperIndex serialises idx into one contiguous buffer: serial,
// rootnode, the area map, the active-area table, and a compact
// one-bit-per-page free/used summary for every area in idx.Summaries,
// which the device fills with the active areas only (spec.md §3, "Super-index page 0"). SummaryEntry's cache-only
// bookkeeping flags (Dirty/AsWritten) are never persisted; they are
// meaningless once reloaded from flash.
func flattenSuperIndex(idx interfaces.SuperIndex) []byte {
	buf := make([]byte, 0, 64+len(idx.AreaMap)*types.AreaMapEntrySize)

	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], idx.Serial)
	buf = append(buf, tmp8[:]...)

	var addrBuf [types.AddrSize]byte
	types.PutAddr(addrBuf[:], idx.Rootnode)
	buf = append(buf, addrBuf[:]...)

	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(idx.AreaMap)))
	buf = append(buf, tmp4[:]...)
	for _, a := range idx.AreaMap {
		rec := make([]byte, types.AreaMapEntrySize)
		types.PutArea(rec, a)
		buf = append(buf, rec...)
	}

	binary.LittleEndian.PutUint16(tmp4[:2], uint16(len(idx.ActiveAreas)))
	buf = append(buf, tmp4[:2]...)
	for t, pos := range idx.ActiveAreas {
		buf = append(buf, byte(t))
		binary.LittleEndian.PutUint32(tmp4[:], uint32(pos))
		buf = append(buf, tmp4[:]...)
	}

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(idx.Summaries)))
	buf = append(buf, tmp4[:]...)
	for pos, entry := range idx.Summaries {
		binary.LittleEndian.PutUint32(tmp4[:], uint32(pos))
		buf = append(buf, tmp4[:]...)
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(entry.Pages)))
		buf = append(buf, tmp4[:]...)
		bitmap := make([]byte, (len(entry.Pages)+7)/8)
		for i, p := range entry.Pages {
			if p != types.PageFree {
				bitmap[i/8] |= 1 << uint(i%8)
			}
		}
		buf = append(buf, bitmap...)
	}

	return buf
}

func unflattenSuperIndex(buf []byte) (interfaces.SuperIndex, error) {
	var idx interfaces.SuperIndex
	r := reader{buf: buf}

	idx.Serial = r.u64()
	idx.Rootnode = types.GetAddr(r.take(types.AddrSize))

	areaCount := int(r.u32())
	idx.AreaMap = make([]types.Area, areaCount)
	for i := 0; i < areaCount; i++ {
		idx.AreaMap[i] = types.GetArea(r.take(types.AreaMapEntrySize))
	}

	activeCount := int(r.u16())
	idx.ActiveAreas = make(map[types.AreaType]types.AreaPos, activeCount)
	for i := 0; i < activeCount; i++ {
		t := types.AreaType(r.byte())
		idx.ActiveAreas[t] = types.AreaPos(r.u32())
	}

	sumCount := int(r.u32())
	idx.Summaries = make(map[types.AreaPos]types.SummaryEntry, sumCount)
	for i := 0; i < sumCount; i++ {
		pos := types.AreaPos(r.u32())
		pageCount := int(r.u32())
		bitmap := r.take((pageCount + 7) / 8)
		pages := make([]types.PageStatus, pageCount)
		for p := 0; p < pageCount; p++ {
			if bitmap[p/8]&(1<<uint(p%8)) != 0 {
				pages[p] = types.PageUsed
			}
		}
		idx.Summaries[pos] = types.SummaryEntry{Area: pos, Pages: pages, LoadedFromSuperPage: true}
	}

	if r.err != nil {
		return interfaces.SuperIndex{}, types.NewError("superblock.unflattenSuperIndex", types.KindBadFlash, r.err)
	}
	return idx, nil
}

// reader is a tiny bounds-checked cursor over a flat decode buffer.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) need(n int) []byte {
	if r.err != nil || r.off+n > len(r.buf) {
		r.err = types.NewError("superblock.reader", types.KindBadFlash, nil)
		return make([]byte, n)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) take(n int) []byte   { return r.need(n) }
func (r *reader) byte() byte          { return r.need(1)[0] }
func (r *reader) u16() uint16         { return binary.LittleEndian.Uint16(r.need(2)) }
func (r *reader) u32() uint32         { return binary.LittleEndian.Uint32(r.need(4)) }
func (r *reader) u64() uint64         { return binary.LittleEndian.Uint64(r.need(8)) }

// encodeSuperIndex splits the flattened super-index across as many
// fixed-size pages as needed: each page carries a one-byte "more follows"
// flag and a trailing CRC32 over the rest of the page.
func encodeSuperIndex(idx interfaces.SuperIndex, pageSize int) ([][]byte, error) {
	flat := flattenSuperIndex(idx)
	chunk := pageSize - 1 - 4
	if chunk <= 0 {
		return nil, types.NewError("superblock.encodeSuperIndex", types.KindInvalidInput, nil)
	}

	var pages [][]byte
	for off := 0; off < len(flat) || len(pages) == 0; off += chunk {
		end := off + chunk
		more := byte(0)
		if end < len(flat) {
			more = 1
		} else {
			end = len(flat)
		}
		page := make([]byte, pageSize)
		page[0] = more
		copy(page[1:1+chunk], flat[off:end])
		crc := crc32.ChecksumIEEE(page[0 : pageSize-4])
		binary.LittleEndian.PutUint32(page[pageSize-4:], crc)
		pages = append(pages, page)
		if more == 0 {
			break
		}
	}
	return pages, nil
}

// decodeSuperIndexPage validates one super-index page's CRC and returns
// its payload chunk plus whether another page follows.
func decodeSuperIndexPage(buf []byte) (payload []byte, more bool, ok bool) {
	if len(buf) < 5 {
		return nil, false, false
	}
	crc := crc32.ChecksumIEEE(buf[0 : len(buf)-4])
	if binary.LittleEndian.Uint32(buf[len(buf)-4:]) != crc {
		return nil, false, false
	}
	return buf[1 : len(buf)-4], buf[0] != 0, true
}
