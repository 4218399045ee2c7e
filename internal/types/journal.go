package types

import "fmt"

// Topic is the owner of a journal entry's eventual replay handler.
type Topic uint8

const (
	TopicCheckpoint Topic = iota
	TopicSuccess
	TopicSuperblock
	TopicTree
	TopicSummaryCache
	TopicInode
)

func (t Topic) String() string {
	switch t {
	case TopicCheckpoint:
		return "checkpoint"
	case TopicSuccess:
		return "success"
	case TopicSuperblock:
		return "superblock"
	case TopicTree:
		return "tree"
	case TopicSummaryCache:
		return "summary_cache"
	case TopicInode:
		return "inode"
	default:
		return "unknown"
	}
}

// Tag identifies the exact (topic, operation) variant of a journal entry;
// the entry's size is derivable from the tag alone, per spec.md §6
// ("Journal on MRAM").
type Tag uint8

const (
	TagCheckpoint Tag = iota
	TagSuccess
	TagSuperblockRootnode
	TagAreaMapSetType
	TagAreaMapSetStatus
	TagAreaMapIncEraseCount
	TagAreaMapSetPosition
	TagAreaMapSwap
	TagActiveArea
	TagTreeInsert
	TagTreeUpdate
	TagTreeRemove
	TagSummaryCommit
	TagSummaryRemove
	TagSummarySetStatus
	TagInodeAdd
	TagInodeWrite
	TagInodeRemove
	TagInodeCommit
)

// Entry is a single journal record. It is a flattened tagged union: only
// the fields relevant to Tag are meaningful, mirroring the C "Max" union
// that bounds on-flash/on-MRAM entry framing (see MaxEntrySize).
type Entry struct {
	Tag     Tag
	Area    AreaPos
	Area2   AreaPos // second area operand, used by TagAreaMapSwap
	AType   AreaType
	AStatus AreaStatus
	Addr    Addr
	Page    uint32
	Status  PageStatus
	InodeNo InodeNo
	Inode   Inode
}

// Topic returns the owning topic for dispatch during replay.
func (e Entry) Topic() Topic {
	switch e.Tag {
	case TagCheckpoint:
		return TopicCheckpoint
	case TagSuccess:
		return TopicSuccess
	case TagSuperblockRootnode, TagAreaMapSetType, TagAreaMapSetStatus,
		TagAreaMapIncEraseCount, TagAreaMapSetPosition, TagAreaMapSwap, TagActiveArea:
		return TopicSuperblock
	case TagTreeInsert, TagTreeUpdate, TagTreeRemove:
		return TopicTree
	case TagSummaryCommit, TagSummaryRemove, TagSummarySetStatus:
		return TopicSummaryCache
	case TagInodeAdd, TagInodeWrite, TagInodeRemove, TagInodeCommit:
		return TopicInode
	default:
		return TopicCheckpoint
	}
}

// MaxEntrySize bounds every entry's on-wire size. The largest entry is
// 1 tag byte plus a full Inode (TagInodeAdd/TagInodeWrite); the constant
// leaves room beyond that.
const MaxEntrySize = 1 + 4 + InodeOnFlashSize + AddrSize + 4 + 1 + 1 + 1

// MarshalBinary encodes e in the fixed per-tag layout used by both the
// MRAM ring and the flash-backed journal area.
func (e Entry) MarshalBinary() []byte {
	buf := make([]byte, MaxEntrySize)
	buf[0] = byte(e.Tag)
	off := 1
	switch e.Tag {
	case TagCheckpoint, TagSuccess:
		// one byte beyond the tag: AType, which carries TagSuccess's topic
		buf[off] = byte(e.AType)
		off++
	case TagSuperblockRootnode:
		PutAddr(buf[off:], e.Addr)
		off += AddrSize
	case TagAreaMapSetType:
		putU32(buf[off:], uint32(e.Area))
		off += 4
		buf[off] = byte(e.AType)
		off++
	case TagAreaMapSetStatus:
		putU32(buf[off:], uint32(e.Area))
		off += 4
		buf[off] = byte(e.AStatus)
		off++
	case TagAreaMapIncEraseCount:
		putU32(buf[off:], uint32(e.Area))
		off += 4
	case TagAreaMapSetPosition:
		putU32(buf[off:], uint32(e.Area))
		off += 4
		putU32(buf[off:], uint32(e.Area2))
		off += 4
	case TagAreaMapSwap:
		putU32(buf[off:], uint32(e.Area))
		off += 4
		putU32(buf[off:], uint32(e.Area2))
		off += 4
	case TagActiveArea:
		buf[off] = byte(e.AType)
		off++
		putU32(buf[off:], uint32(e.Area))
		off += 4
	case TagTreeInsert, TagTreeUpdate:
		copy(buf[off:], e.Inode.MarshalBinary())
		off += InodeOnFlashSize
	case TagTreeRemove:
		putU32(buf[off:], uint32(e.InodeNo))
		off += 4
	case TagSummaryCommit, TagSummaryRemove:
		putU32(buf[off:], uint32(e.Area))
		off += 4
	case TagSummarySetStatus:
		putU32(buf[off:], uint32(e.Area))
		off += 4
		putU32(buf[off:], e.Page)
		off += 4
		buf[off] = byte(e.Status)
		off++
	case TagInodeAdd, TagInodeWrite:
		copy(buf[off:], e.Inode.MarshalBinary())
		off += InodeOnFlashSize
	case TagInodeRemove:
		putU32(buf[off:], uint32(e.InodeNo))
		off += 4
	case TagInodeCommit:
		putU32(buf[off:], uint32(e.InodeNo))
		off += 4
	}
	return buf[:off]
}

// EntrySize returns the exact encoded length for the given tag, so a
// reader can size its read without decoding the payload first.
func EntrySize(tag Tag) (int, error) {
	switch tag {
	case TagCheckpoint, TagSuccess:
		return 2, nil
	case TagSuperblockRootnode:
		return 1 + AddrSize, nil
	case TagAreaMapSetType:
		return 1 + 4 + 1, nil
	case TagAreaMapSetStatus:
		return 1 + 4 + 1, nil
	case TagAreaMapIncEraseCount:
		return 1 + 4, nil
	case TagAreaMapSetPosition, TagAreaMapSwap:
		return 1 + 4 + 4, nil
	case TagActiveArea:
		return 1 + 1 + 4, nil
	case TagTreeInsert, TagTreeUpdate:
		return 1 + InodeOnFlashSize, nil
	case TagTreeRemove:
		return 1 + 4, nil
	case TagSummaryCommit, TagSummaryRemove:
		return 1 + 4, nil
	case TagSummarySetStatus:
		return 1 + 4 + 4 + 1, nil
	case TagInodeAdd, TagInodeWrite:
		return 1 + InodeOnFlashSize, nil
	case TagInodeRemove, TagInodeCommit:
		return 1 + 4, nil
	default:
		return 0, fmt.Errorf("journal: unknown tag %d", tag)
	}
}

// UnmarshalEntry decodes an Entry from buf, which must be at least
// EntrySize(buf[0]) bytes long.
func UnmarshalEntry(buf []byte) (Entry, error) {
	if len(buf) == 0 {
		return Entry{}, fmt.Errorf("journal: empty entry")
	}
	tag := Tag(buf[0])
	size, err := EntrySize(tag)
	if err != nil {
		return Entry{}, err
	}
	if len(buf) < size {
		return Entry{}, fmt.Errorf("journal: short entry for tag %d: have %d want %d", tag, len(buf), size)
	}
	e := Entry{Tag: tag}
	off := 1
	switch tag {
	case TagCheckpoint, TagSuccess:
		e.AType = AreaType(buf[off])
		off++
	case TagSuperblockRootnode:
		e.Addr = GetAddr(buf[off:])
	case TagAreaMapSetType:
		e.Area = AreaPos(getU32(buf[off:]))
		off += 4
		e.AType = AreaType(buf[off])
	case TagAreaMapSetStatus:
		e.Area = AreaPos(getU32(buf[off:]))
		off += 4
		e.AStatus = AreaStatus(buf[off])
	case TagAreaMapIncEraseCount:
		e.Area = AreaPos(getU32(buf[off:]))
	case TagAreaMapSetPosition, TagAreaMapSwap:
		e.Area = AreaPos(getU32(buf[off:]))
		off += 4
		e.Area2 = AreaPos(getU32(buf[off:]))
	case TagActiveArea:
		e.AType = AreaType(buf[off])
		off++
		e.Area = AreaPos(getU32(buf[off:]))
	case TagTreeInsert, TagTreeUpdate:
		e.Inode = UnmarshalInode(buf[off:])
	case TagTreeRemove:
		e.InodeNo = InodeNo(getU32(buf[off:]))
	case TagSummaryCommit, TagSummaryRemove:
		e.Area = AreaPos(getU32(buf[off:]))
	case TagSummarySetStatus:
		e.Area = AreaPos(getU32(buf[off:]))
		off += 4
		e.Page = getU32(buf[off:])
		off += 4
		e.Status = PageStatus(buf[off])
	case TagInodeAdd, TagInodeWrite:
		e.Inode = UnmarshalInode(buf[off:])
	case TagInodeRemove, TagInodeCommit:
		e.InodeNo = InodeNo(getU32(buf[off:]))
	}
	return e, nil
}

// CheckpointEntry builds the journal entry that closes a transaction.
func CheckpointEntry() Entry { return Entry{Tag: TagCheckpoint} }

// SuccessEntry builds the entry marking topic's contribution to the most
// recent checkpoint as durably persisted.
func SuccessEntry(topic Topic) Entry {
	return Entry{Tag: TagSuccess, AType: AreaType(topic)}
}

// SuccessTopic extracts the topic a TagSuccess entry marks successful.
func (e Entry) SuccessTopic() Topic { return Topic(e.AType) }
