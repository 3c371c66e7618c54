// Package store implements the copy-on-write B+tree versioned store
// (spec.md §4.7): every committed tick is reachable via its own root
// page, unchanged pages are shared by reference across ticks, and the
// append-only page file is crash-safe via checksum validation and
// tail truncation.
package store

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// PageSize is the fixed page size used throughout the store (spec.md §4.7
// "Page format: 4 KiB").
const PageSize = 4096

// pageHeaderSize is the header: type(1), flags(1), entryCount(2),
// tickCreated(4), payloadLen(2), checksum(8) = 18 bytes.
const pageHeaderSize = 18

// PageType distinguishes Internal, Leaf, and Overflow pages.
type PageType uint8

const (
	PageInternal PageType = iota
	PageLeaf
	PageOverflow
)

// FileMagic identifies a valid store file (spec.md §6 "64-byte header
// (magic `RGB\0`...")).
var FileMagic = [4]byte{'R', 'G', 'B', 0}

// FileHeaderSize is the file's own 64-byte leading header.
const FileHeaderSize = 64

// FileHeader is the first 64 bytes of the store file.
type FileHeader struct {
	Magic           [4]byte
	FormatVersion   uint32
	PageSize        uint32
	TickIndexOffset int64
}

// EncodeFileHeader serializes h into a FileHeaderSize-byte buffer.
func EncodeFileHeader(h FileHeader) []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], h.PageSize)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(h.TickIndexOffset))
	return buf
}

// DecodeFileHeader parses a FileHeaderSize-byte buffer. It returns an
// error if the magic doesn't match (spec.md §7 "Integrity" failure mode).
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	var h FileHeader
	if len(buf) < FileHeaderSize {
		return h, fmt.Errorf("rgbworld/store: truncated file header (%d bytes)", len(buf))
	}
	copy(h.Magic[:], buf[0:4])
	if h.Magic != FileMagic {
		return h, fmt.Errorf("rgbworld/store: bad magic %v, expected %v", h.Magic, FileMagic)
	}
	h.FormatVersion = binary.LittleEndian.Uint32(buf[4:8])
	h.PageSize = binary.LittleEndian.Uint32(buf[8:12])
	h.TickIndexOffset = int64(binary.LittleEndian.Uint64(buf[12:20]))
	return h, nil
}

// pageHeader is every page's leading fixed-size header.
type pageHeader struct {
	Type        PageType
	Flags       uint8
	EntryCount  uint16
	TickCreated uint32
	PayloadLen  uint16
	Checksum    uint64
}

func encodePageHeader(h pageHeader, payload []byte) []byte {
	buf := make([]byte, pageHeaderSize)
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.EntryCount)
	binary.LittleEndian.PutUint32(buf[4:8], h.TickCreated)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(len(payload)))
	binary.LittleEndian.PutUint64(buf[10:18], xxhash.Sum64(payload))
	return buf
}

func decodePageHeader(buf []byte) pageHeader {
	return pageHeader{
		Type:        PageType(buf[0]),
		Flags:       buf[1],
		EntryCount:  binary.LittleEndian.Uint16(buf[2:4]),
		TickCreated: binary.LittleEndian.Uint32(buf[4:8]),
		PayloadLen:  binary.LittleEndian.Uint16(buf[8:10]),
		Checksum:    binary.LittleEndian.Uint64(buf[10:18]),
	}
}

// verifyChecksum reports whether payload's xxhash matches the page's
// stored checksum — a torn write during a crash will fail this check
// (spec.md §4.7 "page checksums detect torn writes").
func verifyChecksum(h pageHeader, payload []byte) bool {
	return xxhash.Sum64(payload) == h.Checksum
}
