package types

// AreaType classifies what an area currently holds.
type AreaType uint8

const (
	AreaTypeUnset AreaType = iota
	AreaTypeSuperblock
	AreaTypeIndex
	AreaTypeData
	AreaTypeGarbageBuffer
	AreaTypeRetired
	AreaTypeJournal
)

func (t AreaType) String() string {
	switch t {
	case AreaTypeSuperblock:
		return "superblock"
	case AreaTypeIndex:
		return "index"
	case AreaTypeData:
		return "data"
	case AreaTypeGarbageBuffer:
		return "garbage_buffer"
	case AreaTypeRetired:
		return "retired"
	case AreaTypeJournal:
		return "journal"
	default:
		return "unset"
	}
}

// AreaStatus is an area's position in the empty -> active -> closed ->
// (erased) -> empty lifecycle.
type AreaStatus uint8

const (
	AreaStatusEmpty AreaStatus = iota
	AreaStatusActive
	AreaStatusClosed
)

func (s AreaStatus) String() string {
	switch s {
	case AreaStatusActive:
		return "active"
	case AreaStatusClosed:
		return "closed"
	default:
		return "empty"
	}
}

// Area is the semantic record for one logical area slot in the area map.
// It deliberately carries no reference to its summary bitmap: per the
// resolved Open Question, per-area liveness lives only in the summary
// cache.
type Area struct {
	Type       AreaType
	Status     AreaStatus
	EraseCount uint32
	Position   AreaPos
}

// AreaMapEntrySize is the on-flash size of one Area record (without any
// summary pointer, which never exists on flash).
const AreaMapEntrySize = 1 + 1 + 4 + 4

// PutArea encodes a into buf[0:AreaMapEntrySize].
func PutArea(buf []byte, a Area) {
	buf[0] = byte(a.Type)
	buf[1] = byte(a.Status)
	putU32(buf[2:6], a.EraseCount)
	putU32(buf[6:10], uint32(a.Position))
}

// GetArea decodes an Area from buf[0:AreaMapEntrySize].
func GetArea(buf []byte) Area {
	return Area{
		Type:       AreaType(buf[0]),
		Status:     AreaStatus(buf[1]),
		EraseCount: getU32(buf[2:6]),
		Position:   AreaPos(getU32(buf[6:10])),
	}
}
