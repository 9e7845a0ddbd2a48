package storage

import (
	"github.com/smoldb/smoldb/codec"
	"github.com/smoldb/smoldb/smoldberrors"
)

// Slot is the decoded fixed-size prefix of a data-file slot plus its
// payload bytes (spec.md §6.1: "flags u32, dataLength u32, slabSize u32,
// checksum u32, then slabSize-16 bytes").
type Slot struct {
	Flags      uint32
	DataLength uint32
	SlabSize   uint32
	Checksum   uint32
	Payload    []byte
}

// IsActive reports whether the ACTIVE flag bit is set.
func (s *Slot) IsActive() bool { return s.Flags&FlagActive != 0 }

// IsBlob reports whether the BLOB flag bit is set.
func (s *Slot) IsBlob() bool { return s.Flags&FlagBlob != 0 }

// EncodeSlot builds the full slabSize-byte slot buffer: header, payload,
// zero padding out to slabSize.
func EncodeSlot(flags uint32, payload []byte, slabSize uint32) []byte {
	checksum := codec.Checksum(payload)
	buf := make([]byte, 0, slabSize)
	buf = codec.PutUint32(buf, flags)
	buf = codec.PutUint32(buf, uint32(len(payload)))
	buf = codec.PutUint32(buf, slabSize)
	buf = codec.PutUint32(buf, checksum)
	buf = append(buf, payload...)
	for uint32(len(buf)) < slabSize {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeSlot parses a slot buffer of exactly slabSize bytes read at offset,
// validating structural consistency but not the payload checksum (callers
// that need checksum validation call VerifySlot separately, since some
// callers — compaction — only need the raw bytes).
func DecodeSlot(buf []byte, offset int64) (*Slot, error) {
	if len(buf) < SlotHeaderSize {
		return nil, &smoldberrors.CorruptedDataError{Offset: offset, Reason: "short slot header"}
	}
	r := codec.NewReader(buf)
	flags, _ := r.Uint32()
	dataLength, _ := r.Uint32()
	slabSize, _ := r.Uint32()
	checksum, _ := r.Uint32()

	if uint32(len(buf)) != slabSize {
		return nil, &smoldberrors.CorruptedDataError{Offset: offset, Reason: "slot buffer length does not match slabSize"}
	}
	if SlotHeaderSize+dataLength > slabSize {
		return nil, &smoldberrors.CorruptedDataError{Offset: offset, Reason: "dataLength exceeds slab capacity"}
	}

	payload := make([]byte, dataLength)
	copy(payload, buf[SlotHeaderSize:SlotHeaderSize+dataLength])

	return &Slot{
		Flags:      flags,
		DataLength: dataLength,
		SlabSize:   slabSize,
		Checksum:   checksum,
		Payload:    payload,
	}, nil
}

// VerifySlot checks the ACTIVE bit, that the index's recorded length still
// matches the slot's actual data length, and the payload checksum, per the
// read protocol (spec.md §4.4: "check... that dataLength == length").
func VerifySlot(s *Slot, offset int64, length int) error {
	if !s.IsActive() {
		return &smoldberrors.CorruptedDataError{Offset: offset, Reason: "slot is not active"}
	}
	if int(s.DataLength) != length {
		return &smoldberrors.CorruptedDataError{Offset: offset, Reason: "index length does not match slot dataLength"}
	}
	actual := codec.Checksum(s.Payload)
	if actual != s.Checksum {
		return &smoldberrors.ChecksumMismatchError{Offset: offset, Expected: s.Checksum, Actual: actual}
	}
	return nil
}
