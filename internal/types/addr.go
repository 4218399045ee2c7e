package types

import "encoding/binary"

// AreaPos indexes the area map: a logical area's current slot.
type AreaPos uint32

// Addr is a stable, logical (area, page-offset) address. It does not move
// when GC swaps the logical position backing an area, which is the whole
// point of indirecting through the area map instead of addressing physical
// blocks directly.
type Addr struct {
	Area AreaPos
	Page uint32
}

// Empty reports whether this is the zero address, used throughout as the
// "no page allocated yet" marker for direct/indirect slots.
func (a Addr) Empty() bool {
	return a.Area == 0 && a.Page == 0
}

// AddrSize is sizeof(Addr) on flash: two little-endian uint32 fields.
const AddrSize = 8

// PutAddr writes a to buf[0:8] in little-endian order.
func PutAddr(buf []byte, a Addr) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(a.Area))
	binary.LittleEndian.PutUint32(buf[4:8], a.Page)
}

// GetAddr reads an Addr from buf[0:8].
func GetAddr(buf []byte) Addr {
	return Addr{
		Area: AreaPos(binary.LittleEndian.Uint32(buf[0:4])),
		Page: binary.LittleEndian.Uint32(buf[4:8]),
	}
}
