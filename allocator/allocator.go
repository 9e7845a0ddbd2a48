// Package allocator implements the slab size classes and free-list
// allocation policy of the storage engine's slot layer (spec.md §4.2).
package allocator

import (
	"github.com/google/btree"
)

// HeaderSize is the per-slot header overhead (flags + dataLength + slabSize +
// CRC32, see storage.SlotHeaderSize) that every payload's required slab must
// absorb.
const HeaderSize = 16

// Size classes below the 4096-aligned regime.
const (
	ClassSmall  = 1024
	ClassMedium = 8192
	ClassLarge  = 65536
	alignment   = 4096
)

// SlabSize returns the smallest size class that can hold a payload of n
// bytes plus the per-slot header, per spec.md §4.2: "required slab =
// smallest class ≥ n + 16, falling through to ceil((n+16)/4096) * 4096".
func SlabSize(n int) uint32 {
	required := n + HeaderSize
	switch {
	case required <= ClassSmall:
		return ClassSmall
	case required <= ClassMedium:
		return ClassMedium
	case required <= ClassLarge:
		return ClassLarge
	default:
		blocks := (required + alignment - 1) / alignment
		return uint32(blocks * alignment)
	}
}

// Allocation is the result of a FreeList.Allocate call.
type Allocation struct {
	Offset   int64
	SlabSize uint32
	Reused   bool
}

// freeEntry is a btree.BTreeG item ordering distinct slab sizes ascending.
// Each size maps (via FreeList.bySize) to the FIFO list of free offsets of
// exactly that size.
type freeEntry uint32

func freeEntryLess(a, b freeEntry) bool { return a < b }

// FreeList tracks slots freed by deletes, updates and relocations so they
// can be reused by later writes instead of growing the data file.
//
// Entries are organized by size class in a btree of distinct sizes, each
// mapping to the list of free offsets of that size (spec.md §9, "Free-list
// scalability": "organize the free list by size class... to make
// allocation O(1) per size" — grounded on collectionv2/container.go's
// BTreeContainer, which wraps github.com/google/btree the same way).
// Allocate finds the smallest size ≥ the request via AscendGreaterOrEqual,
// which satisfies the spec's "first entry with slabSize ≥ s" contract
// without the O(n) scan an unordered list would require.
type FreeList struct {
	sizes  *btree.BTreeG[freeEntry]
	bySize map[uint32][]int64
	count  int
}

// New returns an empty free list.
func New() *FreeList {
	return &FreeList{
		sizes:  btree.NewG(32, freeEntryLess),
		bySize: map[uint32][]int64{},
	}
}

// Len reports the number of free slots tracked.
func (f *FreeList) Len() int { return f.count }

// Release marks the slot at offset, of the given slab size, as free for
// reuse.
func (f *FreeList) Release(offset int64, slabSize uint32) {
	if _, exists := f.bySize[slabSize]; !exists {
		f.sizes.ReplaceOrInsert(freeEntry(slabSize))
	}
	f.bySize[slabSize] = append(f.bySize[slabSize], offset)
	f.count++
}

// Allocate returns a free slot able to hold a payload requiring at least
// minSlabSize bytes, or ok=false if the free list has no entry large
// enough and the caller must extend the file.
//
// Per spec.md §4.2, the returned slab size is the reused slot's original
// (possibly larger) size: no splitting of the remainder occurs.
func (f *FreeList) Allocate(minSlabSize uint32) (Allocation, bool) {
	var found freeEntry
	hasMatch := false
	f.sizes.AscendGreaterOrEqual(freeEntry(minSlabSize), func(item freeEntry) bool {
		found = item
		hasMatch = true
		return false
	})
	if !hasMatch {
		return Allocation{}, false
	}

	size := uint32(found)
	offsets := f.bySize[size]
	offset := offsets[0]
	offsets = offsets[1:]
	f.count--

	if len(offsets) == 0 {
		delete(f.bySize, size)
		f.sizes.Delete(found)
	} else {
		f.bySize[size] = offsets
	}

	return Allocation{Offset: offset, SlabSize: size, Reused: true}, true
}

// Reset discards every tracked free slot, used when rebuilding the free
// list during compaction (the compacted file starts with none).
func (f *FreeList) Reset() {
	f.sizes = btree.NewG(32, freeEntryLess)
	f.bySize = map[uint32][]int64{}
	f.count = 0
}
