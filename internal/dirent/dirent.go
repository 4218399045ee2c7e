// Package dirent encodes and decodes the directory-entry byte stream a
// directory inode's data holds (spec.md §3, "Directory entries"): a
// 16-bit entry count followed by variable-length records of
// entryLength:u8 | inodeNo:u32 | name. It is a pure codec; callers read
// and write the bytes through interfaces.DataIO.
package dirent

import (
	"encoding/binary"

	"github.com/cirromulus/paffs-go/internal/types"
)

// MaxNameLen is the longest name a record's u8 length byte can encode
// (255 total record bytes minus the 5-byte header).
const MaxNameLen = 255 - 5

// Entry is one decoded directory record.
type Entry struct {
	InodeNo types.InodeNo
	Name    string
}

// Encode serialises entries as a complete directory data stream.
func Encode(entries []Entry) ([]byte, error) {
	if len(entries) > 0xFFFF {
		return nil, types.NewError("dirent.Encode", types.KindInvalidInput, nil)
	}
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(len(entries)))
	for _, e := range entries {
		if len(e.Name) > MaxNameLen {
			return nil, types.NewError("dirent.Encode", types.KindNameTooLong, nil)
		}
		rec := make([]byte, 5+len(e.Name))
		rec[0] = byte(5 + len(e.Name))
		binary.LittleEndian.PutUint32(rec[1:5], uint32(e.InodeNo))
		copy(rec[5:], e.Name)
		buf = append(buf, rec...)
	}
	return buf, nil
}

// Decode parses a complete directory data stream previously produced
// by Encode.
func Decode(buf []byte) ([]Entry, error) {
	if len(buf) < 2 {
		if len(buf) == 0 {
			return nil, nil
		}
		return nil, types.NewError("dirent.Decode", types.KindInvalidInput, nil)
	}
	count := binary.LittleEndian.Uint16(buf[0:2])
	entries := make([]Entry, 0, count)
	off := 2
	for i := uint16(0); i < count; i++ {
		if off >= len(buf) {
			return nil, types.NewError("dirent.Decode", types.KindInvalidInput, nil)
		}
		recLen := int(buf[off])
		if recLen < 5 || off+recLen > len(buf) {
			return nil, types.NewError("dirent.Decode", types.KindInvalidInput, nil)
		}
		no := types.InodeNo(binary.LittleEndian.Uint32(buf[off+1 : off+5]))
		name := string(buf[off+5 : off+recLen])
		entries = append(entries, Entry{InodeNo: no, Name: name})
		off += recLen
	}
	return entries, nil
}

// Find returns the entry named name, if present.
func Find(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Remove returns entries with name removed (order-preserving).
func Remove(entries []Entry, name string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name != name {
			out = append(out, e)
		}
	}
	return out
}
