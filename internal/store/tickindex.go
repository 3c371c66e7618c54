package store

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// tickIndexEntrySize is the on-disk size of one TickIndexEntry record:
// tick(8) + rootOffset(8) + wallTimeUnixNano(8) + entityCount(4).
const tickIndexEntrySize = 28

// TickIndexEntry maps one committed tick to the page offset of its
// B+tree root (spec.md §4.7 "every tick is reachable via its own root
// page"), plus bookkeeping used by `inspect`/`compact` tooling.
type TickIndexEntry struct {
	Tick        uint64
	RootOffset  int64
	WallTimeNS  int64
	EntityCount uint32
}

func encodeTickIndexEntry(e TickIndexEntry) []byte {
	buf := make([]byte, tickIndexEntrySize)
	binary.LittleEndian.PutUint64(buf[0:8], e.Tick)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.RootOffset))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.WallTimeNS))
	binary.LittleEndian.PutUint32(buf[24:28], e.EntityCount)
	return buf
}

func decodeTickIndexEntry(buf []byte) (TickIndexEntry, error) {
	if len(buf) < tickIndexEntrySize {
		return TickIndexEntry{}, fmt.Errorf("rgbworld/store: truncated tick-index entry (%d bytes)", len(buf))
	}
	return TickIndexEntry{
		Tick:        binary.LittleEndian.Uint64(buf[0:8]),
		RootOffset:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		WallTimeNS:  int64(binary.LittleEndian.Uint64(buf[16:24])),
		EntityCount: binary.LittleEndian.Uint32(buf[24:28]),
	}, nil
}

// TickIndex is the monotonic tick -> root-offset index (spec.md §4.7,
// §6). It is rebuilt in memory on open from its own file
// (world.tickindex, beside the page file) and appended to (never
// rewritten) on every commit.
type TickIndex struct {
	pf      *PageFile
	base    int64 // file offset where the tick-index stream starts
	entries []TickIndexEntry
}

// OpenTickIndex loads the tick-index stream starting at base, stopping
// at the first entry that fails to decode or whose tick is not greater
// than the previous one — spec.md §7's "corrupt entries truncate the
// usable history to the last good one". It then truncates the file
// itself to just past the last good entry.
func OpenTickIndex(pf *PageFile, base int64) (*TickIndex, error) {
	ti := &TickIndex{pf: pf, base: base}
	size, err := pf.Size()
	if err != nil {
		return nil, err
	}
	offset := base
	for offset+tickIndexEntrySize <= size {
		buf := make([]byte, tickIndexEntrySize)
		if _, err := pf.f.ReadAt(buf, offset); err != nil {
			break
		}
		entry, err := decodeTickIndexEntry(buf)
		if err != nil {
			break
		}
		if len(ti.entries) > 0 && entry.Tick <= ti.entries[len(ti.entries)-1].Tick {
			break // monotonicity broken: torn/garbage tail
		}
		ti.entries = append(ti.entries, entry)
		offset += tickIndexEntrySize
	}
	if offset != size {
		if err := pf.Truncate(offset); err != nil {
			return nil, err
		}
	}
	return ti, nil
}

// Append records a new committed tick. The tick-index stream is itself
// append-only; there is no in-place update.
func (ti *TickIndex) Append(e TickIndexEntry) error {
	if _, err := ti.pf.AppendRaw(encodeTickIndexEntry(e)); err != nil {
		return err
	}
	ti.entries = append(ti.entries, e)
	return nil
}

// Latest returns the most recently committed entry, if any.
func (ti *TickIndex) Latest() (TickIndexEntry, bool) {
	if len(ti.entries) == 0 {
		return TickIndexEntry{}, false
	}
	return ti.entries[len(ti.entries)-1], true
}

// At finds the entry for an exact tick.
func (ti *TickIndex) At(tick uint64) (TickIndexEntry, bool) {
	i := sort.Search(len(ti.entries), func(i int) bool { return ti.entries[i].Tick >= tick })
	if i < len(ti.entries) && ti.entries[i].Tick == tick {
		return ti.entries[i], true
	}
	return TickIndexEntry{}, false
}

// Truncate drops every entry after (and including) tick, used by
// Store.Truncate to roll the visible history back.
func (ti *TickIndex) Truncate(tick uint64) {
	i := sort.Search(len(ti.entries), func(i int) bool { return ti.entries[i].Tick >= tick })
	ti.entries = ti.entries[:i]
}

// All returns every indexed tick, oldest first.
func (ti *TickIndex) All() []TickIndexEntry {
	return ti.entries
}
