package storage

import (
	"fmt"

	"github.com/smoldb/smoldb/codec"
	"github.com/smoldb/smoldb/smoldberrors"
)

// Magic numbers and layout constants for <collection>.data (spec.md §6.1).
const (
	DataMagic   uint32 = 0x4C4F4D53 // 'S','M','O','L' little-endian
	DataVersion uint32 = 1

	// HeaderSize is the fixed-size region preceding the slot stream.
	HeaderSize = 64

	// SlotHeaderSize is the per-slot fixed prefix: flags, dataLength,
	// slabSize, checksum, each a u32.
	SlotHeaderSize = 16
)

// Slot flag bits.
const (
	FlagActive uint32 = 1 << 0
	FlagBlob   uint32 = 1 << 1
)

// Header is the in-memory mirror of the 64-byte data-file header.
type Header struct {
	FileSize       uint64
	LiveDataSize   uint64
	DocumentCount  uint64
	NextSlotOffset uint64
}

// Encode renders h as the 64-byte on-disk header.
func (h *Header) Encode() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = codec.PutUint32(buf, DataMagic)
	buf = codec.PutUint32(buf, DataVersion)
	buf = codec.PutUint64(buf, h.FileSize)
	buf = codec.PutUint64(buf, h.LiveDataSize)
	buf = codec.PutUint64(buf, h.DocumentCount)
	buf = codec.PutUint64(buf, h.NextSlotOffset)
	for len(buf) < HeaderSize {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeHeader parses the 64-byte on-disk header, validating magic and
// version (spec.md §7 InvalidFileFormat).
func DecodeHeader(buf []byte, path string) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, &smoldberrors.InvalidFileFormatError{Path: path, Reason: "file shorter than header"}
	}
	r := codec.NewReader(buf)
	magic, _ := r.Uint32()
	if magic != DataMagic {
		return nil, &smoldberrors.InvalidFileFormatError{Path: path, Reason: fmt.Sprintf("bad magic: %#x", magic)}
	}
	version, _ := r.Uint32()
	if version != DataVersion {
		return nil, &smoldberrors.InvalidFileFormatError{Path: path, Reason: fmt.Sprintf("unsupported version: %d", version)}
	}
	fileSize, _ := r.Uint64()
	liveDataSize, _ := r.Uint64()
	documentCount, _ := r.Uint64()
	nextSlotOffset, _ := r.Uint64()
	return &Header{
		FileSize:       fileSize,
		LiveDataSize:   liveDataSize,
		DocumentCount:  documentCount,
		NextSlotOffset: nextSlotOffset,
	}, nil
}

// NewHeader returns the header for a freshly created, empty data file.
func NewHeader() *Header {
	return &Header{
		FileSize:       HeaderSize,
		NextSlotOffset: HeaderSize,
	}
}
