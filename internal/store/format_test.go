package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeaderRoundTrip(t *testing.T) {
	h := FileHeader{Magic: FileMagic, FormatVersion: 1, PageSize: PageSize, TickIndexOffset: 1234}
	buf := EncodeFileHeader(h)
	require.Len(t, buf, FileHeaderSize)

	got, err := DecodeFileHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeFileHeaderRejectsBadMagic(t *testing.T) {
	h := FileHeader{Magic: [4]byte{'X', 'X', 'X', 'X'}, FormatVersion: 1, PageSize: PageSize}
	buf := EncodeFileHeader(h)
	_, err := DecodeFileHeader(buf)
	assert.Error(t, err)
}

func TestDecodeFileHeaderRejectsTruncated(t *testing.T) {
	_, err := DecodeFileHeader(make([]byte, 10))
	assert.Error(t, err)
}

func TestPageHeaderChecksumDetectsCorruption(t *testing.T) {
	payload := []byte("component bytes")
	hdr := decodePageHeader(encodePageHeader(pageHeader{Type: PageLeaf, EntryCount: 3, TickCreated: 7}, payload))
	assert.True(t, verifyChecksum(hdr, payload))

	corrupted := append([]byte(nil), payload...)
	corrupted[0] ^= 0xFF
	assert.False(t, verifyChecksum(hdr, corrupted))
}

func TestPageHeaderRoundTripsFields(t *testing.T) {
	payload := make([]byte, 100)
	hdr := pageHeader{Type: PageInternal, Flags: 0, EntryCount: 9, TickCreated: 42}
	buf := encodePageHeader(hdr, payload)
	got := decodePageHeader(buf)
	assert.Equal(t, PageInternal, got.Type)
	assert.EqualValues(t, 9, got.EntryCount)
	assert.EqualValues(t, 42, got.TickCreated)
	assert.EqualValues(t, len(payload), got.PayloadLen)
}
