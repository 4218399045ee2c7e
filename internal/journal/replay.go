package journal

import (
	"log/slog"

	"github.com/cirromulus/paffs-go/internal/interfaces"
	"github.com/cirromulus/paffs-go/internal/types"
)

// replay decodes the entries in buf in write order, applies every entry
// up to and including the last checkpoint through its topic's Apply
// handler, and offers any trailing, uncheckpointed entries to their
// topic's Uncheckpointed handler instead (spec.md §4.9, "Replay on
// mount").
func replay(buf []byte, handlers interfaces.TopicHandlers, log *slog.Logger) error {
	type decoded struct {
		entry types.Entry
	}
	var entries []decoded
	lastCheckpoint := -1

	off := 0
	for off < len(buf) {
		tag := types.Tag(buf[off])
		size, err := types.EntrySize(tag)
		if err != nil {
			log.Warn("journal: stopping replay at undecodable tag", "offset", off, "err", err)
			break
		}
		if off+size > len(buf) {
			log.Warn("journal: truncated entry at tail, dropping", "offset", off)
			break
		}
		e, err := types.UnmarshalEntry(buf[off : off+size])
		if err != nil {
			return err
		}
		entries = append(entries, decoded{entry: e})
		if e.Tag == types.TagCheckpoint {
			lastCheckpoint = len(entries) - 1
		}
		off += size
	}

	for i, d := range entries {
		if d.entry.Tag == types.TagCheckpoint || d.entry.Tag == types.TagSuccess {
			continue
		}
		topic := d.entry.Topic()
		if i <= lastCheckpoint {
			if h, ok := handlers.Apply[topic]; ok {
				if err := h(d.entry); err != nil {
					return err
				}
			}
		} else {
			if h, ok := handlers.Uncheckpointed[topic]; ok {
				if err := h(d.entry); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
