package storage

import (
	"fmt"
	"os"

	"github.com/smoldb/smoldb/allocator"
)

// IDLocation pairs a document id with its current location, supplied by
// the index manager in primary-index insertion order (spec.md §4.7 step 1).
type IDLocation struct {
	ID       string
	Location Location
}

// CompactResult reports the outcome of a Compact call.
type CompactResult struct {
	BytesFreed    int64
	NewLocations  map[string]Location
	OldFileSize   uint64
	NewFileSize   uint64
}

// Compact rewrites the data file containing only the live records named
// by ordered, tightly packed at their minimal slab classes, and publishes
// an updated header and free list (spec.md §4.7).
func (e *Engine) Compact(ordered []IDLocation) (CompactResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	oldFileSize := e.header.FileSize

	newLocations := make(map[string]Location, len(ordered))
	packed := make([]byte, 0, oldFileSize)
	var packedOffset int64
	var liveDataSize uint64

	for _, entry := range ordered {
		slot, err := e.readSlotLocked(entry.Location)
		if err != nil {
			return CompactResult{}, err
		}
		if err := VerifySlot(slot, entry.Location.Offset, int(entry.Location.Length)); err != nil {
			return CompactResult{}, err
		}

		var payloadLen int
		if entry.Location.IsBlob {
			ref, err := decodeBlobRef(slot.Payload)
			if err != nil {
				return CompactResult{}, err
			}
			payloadLen = ref.Size
		} else {
			payloadLen = len(slot.Payload)
		}

		newSlabSize := requiredSlabFor(slot, entry.Location)
		flags := FlagActive
		if entry.Location.IsBlob {
			flags |= FlagBlob
		}
		buf := EncodeSlot(flags, slot.Payload, newSlabSize)
		packed = append(packed, buf...)

		newLocations[entry.ID] = Location{
			Offset:   HeaderSize + packedOffset,
			Length:   uint32(len(slot.Payload)),
			SlabSize: newSlabSize,
			IsBlob:   entry.Location.IsBlob,
		}
		packedOffset += int64(newSlabSize)
		liveDataSize += uint64(payloadLen)
	}

	newHeader := &Header{
		FileSize:       HeaderSize + uint64(packedOffset),
		LiveDataSize:   liveDataSize,
		DocumentCount:  uint64(len(ordered)),
		NextSlotOffset: HeaderSize + uint64(packedOffset),
	}

	full := make([]byte, 0, HeaderSize+len(packed))
	full = append(full, newHeader.Encode()...)
	full = append(full, packed...)

	tmpPath := e.dataPath + ".tmp"
	if err := os.WriteFile(tmpPath, full, 0o644); err != nil {
		return CompactResult{}, fmt.Errorf("smoldb: write compacted file: %w", err)
	}
	if err := os.Rename(tmpPath, e.dataPath); err != nil {
		return CompactResult{}, fmt.Errorf("smoldb: rename compacted file: %w", err)
	}

	if err := e.file.Close(); err != nil {
		return CompactResult{}, fmt.Errorf("smoldb: close stale handle: %w", err)
	}
	f, err := os.OpenFile(e.dataPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return CompactResult{}, fmt.Errorf("smoldb: reopen compacted file: %w", err)
	}
	e.file = f

	bytesFreed := int64(oldFileSize) - int64(newHeader.FileSize)

	e.header = newHeader
	e.free.Reset()
	e.dirty = false
	e.publishCounters()

	return CompactResult{
		BytesFreed:   bytesFreed,
		NewLocations: newLocations,
		OldFileSize:  oldFileSize,
		NewFileSize:  newHeader.FileSize,
	}, nil
}

// requiredSlabFor recomputes the minimal slab size for a record being
// repacked: the payload length covers both inline documents and blob
// reference JSON, since the reference is what actually occupies the slot
// (spec.md §4.7 step 2, "may be smaller than the old slab").
func requiredSlabFor(slot *Slot, _ Location) uint32 {
	return allocator.SlabSize(len(slot.Payload))
}
