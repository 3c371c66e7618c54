package store

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"
)

// PageFile is an append-only backing file: a FileHeader followed by a
// sequence of pages (spec.md §6 "Persisted state layout"). The tick
// index is not at its tail; it lives in a second PageFile of its own,
// written with AppendRaw. Reads go through a read-only mmap that is remapped
// after every append; writes are plain appends via the OS file handle.
type PageFile struct {
	f      *os.File
	lock   *flock.Flock
	size   int64
	mapped mmap.MMap
}

// Open opens (creating if absent) the page file at path, taking an
// exclusive data-directory lock so two processes never share one store
// (spec.md's crash model assumes a single writer).
func Open(path string) (*PageFile, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("rgbworld/store: acquiring lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("rgbworld/store: %s is already open by another process", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	pf := &PageFile{f: f, lock: lock}
	info, err := f.Stat()
	if err != nil {
		pf.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := pf.writeHeader(); err != nil {
			pf.Close()
			return nil, err
		}
	}
	if err := pf.remap(); err != nil {
		pf.Close()
		return nil, err
	}
	return pf, nil
}

func (pf *PageFile) writeHeader() error {
	h := EncodeFileHeader(FileHeader{Magic: FileMagic, FormatVersion: 1, PageSize: PageSize})
	if _, err := pf.f.WriteAt(h, 0); err != nil {
		return err
	}
	return pf.f.Sync()
}

func (pf *PageFile) remap() error {
	if pf.mapped != nil {
		pf.mapped.Unmap()
		pf.mapped = nil
	}
	info, err := pf.f.Stat()
	if err != nil {
		return err
	}
	pf.size = info.Size()
	if pf.size == 0 {
		return nil
	}
	m, err := mmap.MapRegion(pf.f, int(pf.size), mmap.RDONLY, 0, 0)
	if err != nil {
		return err
	}
	pf.mapped = m
	return nil
}

// Header reads the file's leading FileHeader.
func (pf *PageFile) Header() (FileHeader, error) {
	buf := make([]byte, FileHeaderSize)
	if _, err := pf.f.ReadAt(buf, 0); err != nil {
		return FileHeader{}, err
	}
	return DecodeFileHeader(buf)
}

// Append writes payload-with-header at the current end of file and
// returns its offset. Pages outside the touched COW path are never
// rewritten — only new pages are appended (spec.md §4.7 "writes new
// pages to the append-only log").
func (pf *PageFile) Append(pt PageType, tick uint32, entryCount uint16, payload []byte) (offset int64, err error) {
	if len(payload) > PageSize-pageHeaderSize {
		return 0, fmt.Errorf("rgbworld/store: payload %d bytes exceeds page capacity", len(payload))
	}
	hdr := encodePageHeader(pageHeader{Type: pt, EntryCount: entryCount, TickCreated: tick}, payload)
	page := make([]byte, PageSize)
	copy(page, hdr)
	copy(page[pageHeaderSize:], payload)

	info, err := pf.f.Stat()
	if err != nil {
		return 0, err
	}
	offset = info.Size()
	if _, err := pf.f.WriteAt(page, offset); err != nil {
		return 0, err
	}
	if err := pf.remap(); err != nil {
		return 0, err
	}
	return offset, nil
}

// AppendRaw appends an arbitrary (non-page-shaped) byte blob, used for
// the tick-index tail stream. Returns the write offset.
func (pf *PageFile) AppendRaw(data []byte) (offset int64, err error) {
	info, err := pf.f.Stat()
	if err != nil {
		return 0, err
	}
	offset = info.Size()
	if _, err := pf.f.WriteAt(data, offset); err != nil {
		return 0, err
	}
	return offset, nil
}

// ReadPage reads the page at offset, verifying its checksum. A mismatch
// surfaces spec.md §7's Integrity error so the caller can trigger
// recovery. Reads are served from the read-only mmap (remapped after
// every Append) rather than a syscall per page, so historical reads
// never contend with the writer's file handle.
func (pf *PageFile) ReadPage(offset int64) (PageType, uint32, []byte, error) {
	if pf.mapped == nil || offset < 0 || offset+PageSize > int64(len(pf.mapped)) {
		return 0, 0, nil, fmt.Errorf("rgbworld/store: page offset %d out of range (file size %d)", offset, len(pf.mapped))
	}
	buf := pf.mapped[offset : offset+PageSize]
	hdr := decodePageHeader(buf[:pageHeaderSize])
	payload := buf[pageHeaderSize : pageHeaderSize+int(hdr.PayloadLen)]
	if !verifyChecksum(hdr, payload) {
		return 0, 0, nil, fmt.Errorf("rgbworld/store: checksum mismatch at page offset %d", offset)
	}
	return hdr.Type, hdr.TickCreated, payload, nil
}

// Size returns the current file size.
func (pf *PageFile) Size() (int64, error) {
	info, err := pf.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Truncate shrinks the file to size bytes — used by crash recovery to
// drop a torn tail (spec.md §4.7 "the append-only file is truncated to
// the last valid tick-index entry on recovery").
func (pf *PageFile) Truncate(size int64) error {
	if pf.mapped != nil {
		pf.mapped.Unmap()
		pf.mapped = nil
	}
	if err := pf.f.Truncate(size); err != nil {
		return err
	}
	return pf.remap()
}

// Close releases the mmap, file handle and data-directory lock.
func (pf *PageFile) Close() error {
	if pf.mapped != nil {
		pf.mapped.Unmap()
	}
	pf.lock.Unlock()
	return pf.f.Close()
}
