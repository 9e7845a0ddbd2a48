// Package storage implements the slotted data file: slab allocation,
// the write protocol (insert/update/delete/batch/writeMany/reset),
// the read protocol, the blob path and compaction (spec.md §4.2–§4.7,
// §6.1, §6.3).
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/smoldb/smoldb/allocator"
	"github.com/smoldb/smoldb/sharedstate"
	"github.com/smoldb/smoldb/smoldberrors"
)

// Engine owns one collection's data-file handle, header and free list
// (spec.md §9 "Ownership model").
type Engine struct {
	basePath   string
	collection string
	dataPath   string

	file *os.File
	mu   sync.Mutex

	header *Header
	free   *allocator.FreeList

	batchDepth int
	dirty      bool

	blobThreshold int
	state         *sharedstate.State
}

// Options configures an Engine at Open time.
type Options struct {
	BasePath      string
	Collection    string
	BlobThreshold int // default applied by caller; 0 here means "no blobs"
	State         *sharedstate.State // optional; nil disables publishing
}

// Open opens (creating if absent) <basePath>/<collection>.data.
func Open(opts Options) (*Engine, error) {
	path := DataPath(opts.BasePath, opts.Collection)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("smoldb: open data file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("smoldb: stat data file: %w", err)
	}

	e := &Engine{
		basePath:      opts.BasePath,
		collection:    opts.Collection,
		dataPath:      path,
		file:          f,
		free:          allocator.New(),
		blobThreshold: opts.BlobThreshold,
		state:         opts.State,
	}

	if info.Size() == 0 {
		e.header = NewHeader()
		if err := e.writeHeaderLocked(); err != nil {
			f.Close()
			return nil, err
		}
		return e, nil
	}

	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("smoldb: read header: %w", err)
	}
	header, err := DecodeHeader(buf, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	e.header = header
	e.publishCounters()
	return e, nil
}

// DataPath returns the path of a collection's data file.
func DataPath(basePath, collection string) string {
	return basePath + "/" + collection + ".data"
}

// Stats is the subset of header state exposed via getStats (spec.md §6.4).
type Stats struct {
	FileSize       uint64
	LiveDataSize   uint64
	DocumentCount  uint64
	NextSlotOffset uint64
	FreeSlotCount  int
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		FileSize:       e.header.FileSize,
		LiveDataSize:   e.header.LiveDataSize,
		DocumentCount:  e.header.DocumentCount,
		NextSlotOffset: e.header.NextSlotOffset,
		FreeSlotCount:  e.free.Len(),
	}
}

// Close flushes the header and closes the file handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writeHeaderLocked(); err != nil {
		return err
	}
	return e.file.Close()
}

// --- write protocol (spec.md §4.3) ---

// Insert allocates a slot (or the blob path) for doc and returns its
// location. id is used only to name the blob file if the blob path is
// taken; duplicate-id checking is the index manager's responsibility.
func (e *Engine) Insert(id string, doc interface{}) (Location, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return Location{}, fmt.Errorf("smoldb: encode document: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loc, err := e.insertLocked(id, payload)
	if err != nil {
		return Location{}, err
	}
	if e.batchDepth == 0 {
		if err := e.flushLocked(); err != nil {
			return Location{}, err
		}
	}
	return loc, nil
}

func (e *Engine) insertLocked(id string, payload []byte) (Location, error) {
	if e.isBlobSized(len(payload)) {
		return e.insertBlobLocked(id, payload)
	}

	required := allocator.SlabSize(len(payload))
	offset, slabSize, err := e.acquireSlotLocked(required)
	if err != nil {
		return Location{}, err
	}

	buf := EncodeSlot(FlagActive, payload, slabSize)
	if _, err := e.file.WriteAt(buf, offset); err != nil {
		return Location{}, fmt.Errorf("smoldb: write slot: %w", err)
	}

	e.header.DocumentCount++
	e.header.LiveDataSize += uint64(len(payload))
	e.dirty = true

	return Location{Offset: offset, Length: uint32(len(payload)), SlabSize: slabSize, IsBlob: false}, nil
}

func (e *Engine) insertBlobLocked(id string, payload []byte) (Location, error) {
	ref, err := writeBlob(e.basePath, e.collection, id, payload)
	if err != nil {
		return Location{}, err
	}
	refPayload := encodeBlobRef(ref)

	required := allocator.SlabSize(len(refPayload))
	offset, slabSize, err := e.acquireSlotLocked(required)
	if err != nil {
		return Location{}, err
	}

	buf := EncodeSlot(FlagActive|FlagBlob, refPayload, slabSize)
	if _, err := e.file.WriteAt(buf, offset); err != nil {
		return Location{}, fmt.Errorf("smoldb: write blob reference slot: %w", err)
	}

	e.header.DocumentCount++
	e.header.LiveDataSize += uint64(ref.Size)
	e.dirty = true

	return Location{Offset: offset, Length: uint32(len(refPayload)), SlabSize: slabSize, IsBlob: true}, nil
}

// acquireSlotLocked returns an offset and slab size able to hold
// requiredSlab bytes, reusing a free slot when one is large enough
// (spec.md §4.2 allocation policy). Callers must hold e.mu.
func (e *Engine) acquireSlotLocked(requiredSlab uint32) (int64, uint32, error) {
	if alloc, ok := e.free.Allocate(requiredSlab); ok {
		return alloc.Offset, alloc.SlabSize, nil
	}
	offset := int64(e.header.NextSlotOffset)
	e.header.NextSlotOffset += uint64(requiredSlab)
	e.header.FileSize += uint64(requiredSlab)
	return offset, requiredSlab, nil
}

func (e *Engine) isBlobSized(n int) bool {
	return e.blobThreshold > 0 && n > e.blobThreshold
}

// Update re-encodes doc and applies the transition matrix of spec.md §4.3
// against old, returning the document's new location.
func (e *Engine) Update(id string, doc interface{}, old Location) (Location, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return Location{}, fmt.Errorf("smoldb: encode document: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loc, err := e.updateLocked(id, payload, old)
	if err != nil {
		return Location{}, err
	}
	if e.batchDepth == 0 {
		if err := e.flushLocked(); err != nil {
			return Location{}, err
		}
	}
	return loc, nil
}

func (e *Engine) updateLocked(id string, payload []byte, old Location) (Location, error) {
	newIsBlob := e.isBlobSized(len(payload))

	switch {
	case !old.IsBlob && !newIsBlob:
		return e.updateInlineToInlineLocked(payload, old)
	case !old.IsBlob && newIsBlob:
		if err := e.freeSlotLocked(old); err != nil {
			return Location{}, err
		}
		loc, err := e.insertBlobLocked(id, payload)
		if err != nil {
			return Location{}, err
		}
		e.header.DocumentCount-- // insertBlobLocked counts a new document; this one replaces old
		return loc, nil
	case old.IsBlob && newIsBlob:
		return e.updateBlobToBlobLocked(id, payload, old)
	default: // old.IsBlob && !newIsBlob
		if err := e.replaceBlobWithInlineLocked(id, payload, old); err != nil {
			return Location{}, err
		}
		loc, err := e.insertLocked(id, payload)
		if err != nil {
			return Location{}, err
		}
		e.header.DocumentCount-- // insertLocked counts a new document; this one replaces old
		return loc, nil
	}
}

func (e *Engine) updateInlineToInlineLocked(payload []byte, old Location) (Location, error) {
	oldPayloadLen := uint64(old.Length)

	if uint32(len(payload))+SlotHeaderSize <= old.SlabSize {
		buf := EncodeSlot(FlagActive, payload, old.SlabSize)
		if _, err := e.file.WriteAt(buf, old.Offset); err != nil {
			return Location{}, fmt.Errorf("smoldb: rewrite slot: %w", err)
		}
		e.header.LiveDataSize = e.header.LiveDataSize - oldPayloadLen + uint64(len(payload))
		e.dirty = true
		return Location{Offset: old.Offset, Length: uint32(len(payload)), SlabSize: old.SlabSize, IsBlob: false}, nil
	}

	if err := e.freeSlotLocked(old); err != nil {
		return Location{}, err
	}
	required := allocator.SlabSize(len(payload))
	offset, slabSize, err := e.acquireSlotLocked(required)
	if err != nil {
		return Location{}, err
	}
	buf := EncodeSlot(FlagActive, payload, slabSize)
	if _, err := e.file.WriteAt(buf, offset); err != nil {
		return Location{}, fmt.Errorf("smoldb: write relocated slot: %w", err)
	}
	e.header.LiveDataSize = e.header.LiveDataSize - oldPayloadLen + uint64(len(payload))
	e.dirty = true
	return Location{Offset: offset, Length: uint32(len(payload)), SlabSize: slabSize, IsBlob: false}, nil
}

func (e *Engine) updateBlobToBlobLocked(id string, payload []byte, old Location) (Location, error) {
	oldRef, err := e.readBlobRefLocked(old)
	if err != nil {
		return Location{}, err
	}

	newRef, err := writeBlob(e.basePath, e.collection, id, payload)
	if err != nil {
		return Location{}, err
	}
	refPayload := encodeBlobRef(newRef)

	if uint32(len(refPayload))+SlotHeaderSize <= old.SlabSize {
		buf := EncodeSlot(FlagActive|FlagBlob, refPayload, old.SlabSize)
		if _, err := e.file.WriteAt(buf, old.Offset); err != nil {
			return Location{}, fmt.Errorf("smoldb: rewrite blob reference: %w", err)
		}
		e.header.LiveDataSize = e.header.LiveDataSize - uint64(oldRef.Size) + uint64(newRef.Size)
		e.dirty = true
		return Location{Offset: old.Offset, Length: uint32(len(refPayload)), SlabSize: old.SlabSize, IsBlob: true}, nil
	}

	if err := e.freeSlotLocked(old); err != nil {
		return Location{}, err
	}
	required := allocator.SlabSize(len(refPayload))
	offset, slabSize, err := e.acquireSlotLocked(required)
	if err != nil {
		return Location{}, err
	}
	buf := EncodeSlot(FlagActive|FlagBlob, refPayload, slabSize)
	if _, err := e.file.WriteAt(buf, offset); err != nil {
		return Location{}, fmt.Errorf("smoldb: write relocated blob reference: %w", err)
	}
	e.header.LiveDataSize = e.header.LiveDataSize - uint64(oldRef.Size) + uint64(newRef.Size)
	e.dirty = true
	return Location{Offset: offset, Length: uint32(len(refPayload)), SlabSize: slabSize, IsBlob: true}, nil
}

// replaceBlobWithInlineLocked deletes the blob file and frees the old
// reference slot, leaving the caller to insertLocked the inline payload.
func (e *Engine) replaceBlobWithInlineLocked(id string, payload []byte, old Location) error {
	oldRef, err := e.readBlobRefLocked(old)
	if err != nil {
		return err
	}
	if err := deleteBlob(e.basePath, oldRef); err != nil {
		return err
	}
	e.header.LiveDataSize -= uint64(oldRef.Size)
	return e.freeSlotLocked(old)
}

// Delete frees the slot (and blob file, if any) at loc.
func (e *Engine) Delete(loc Location) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.deleteLocked(loc); err != nil {
		return err
	}
	if e.batchDepth == 0 {
		return e.flushLocked()
	}
	return nil
}

func (e *Engine) deleteLocked(loc Location) error {
	if loc.IsBlob {
		ref, err := e.readBlobRefLocked(loc)
		if err != nil {
			return err
		}
		if err := deleteBlob(e.basePath, ref); err != nil {
			return err
		}
		e.header.LiveDataSize -= uint64(ref.Size)
	} else {
		e.header.LiveDataSize -= uint64(loc.Length)
	}

	if err := e.freeSlotLocked(loc); err != nil {
		return err
	}
	e.header.DocumentCount--
	return nil
}

// freeSlotLocked clears the ACTIVE bit on disk and releases the slot to
// the free list.
func (e *Engine) freeSlotLocked(loc Location) error {
	var flagsBuf [4]byte
	if _, err := e.file.WriteAt(flagsBuf[:], loc.Offset); err != nil {
		return fmt.Errorf("smoldb: clear active bit: %w", err)
	}
	e.free.Release(loc.Offset, loc.SlabSize)
	e.dirty = true
	return nil
}

// --- read protocol (spec.md §4.4) ---

// Read loads and decodes the document at loc into a generic map (numbers
// decode as float64). It does not take e.mu, so it can be called from
// inside a Batch callback; it must not run concurrently with Compact,
// which replaces the file handle.
func (e *Engine) Read(loc Location) (map[string]interface{}, error) {
	payload, err := e.readPayloadLocked(loc)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&doc); err != nil {
		return nil, &smoldberrors.CorruptedDataError{Offset: loc.Offset, Reason: "malformed document JSON: " + err.Error()}
	}
	return doc, nil
}

func (e *Engine) readPayloadLocked(loc Location) ([]byte, error) {
	slot, err := e.readSlotLocked(loc)
	if err != nil {
		return nil, err
	}
	if err := VerifySlot(slot, loc.Offset, int(loc.Length)); err != nil {
		return nil, err
	}

	if !loc.IsBlob {
		return slot.Payload, nil
	}

	ref, err := decodeBlobRef(slot.Payload)
	if err != nil {
		return nil, err
	}
	return readBlob(e.basePath, ref)
}

func (e *Engine) readSlotLocked(loc Location) (*Slot, error) {
	buf := make([]byte, loc.SlabSize)
	if _, err := e.file.ReadAt(buf, loc.Offset); err != nil {
		return nil, &smoldberrors.CorruptedDataError{Offset: loc.Offset, Reason: "unexpected EOF: " + err.Error()}
	}
	return DecodeSlot(buf, loc.Offset)
}

func (e *Engine) readBlobRefLocked(loc Location) (blobRef, error) {
	slot, err := e.readSlotLocked(loc)
	if err != nil {
		return blobRef{}, err
	}
	if err := VerifySlot(slot, loc.Offset, int(loc.Length)); err != nil {
		return blobRef{}, err
	}
	return decodeBlobRef(slot.Payload)
}

// --- batching (spec.md §4.3 "batch") ---

// BatchOps exposes write, update and delete to a Batch callback. Every
// method assumes the engine's write lock is already held for the whole
// batch, so it talks to the *Locked helpers directly instead of taking
// the lock itself.
type BatchOps struct {
	e *Engine
}

// Write inserts doc under id.
func (b *BatchOps) Write(id string, doc interface{}) (Location, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return Location{}, fmt.Errorf("smoldb: encode document: %w", err)
	}
	return b.e.insertLocked(id, payload)
}

// Update re-encodes doc and applies it over old.
func (b *BatchOps) Update(id string, doc interface{}, old Location) (Location, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return Location{}, fmt.Errorf("smoldb: encode document: %w", err)
	}
	return b.e.updateLocked(id, payload, old)
}

// Delete frees the slot at loc.
func (b *BatchOps) Delete(loc Location) error {
	return b.e.deleteLocked(loc)
}

// Batch acquires the write lock once, increments the batch-depth counter,
// and runs fn with the lock held for its whole duration. At depth 0 it
// flushes metadata exactly once; nested batches share the outermost flush
// (spec.md §4.3 "batch").
func (e *Engine) Batch(fn func(*BatchOps) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.batchDepth++
	err := fn(&BatchOps{e: e})
	e.batchDepth--

	if err != nil {
		return err
	}
	if e.batchDepth == 0 {
		return e.flushLocked()
	}
	return nil
}

// WriteManyItem is one document of a WriteMany call.
type WriteManyItem struct {
	ID  string
	Doc interface{}
}

// WriteMany is the bulk-insert fast path of spec.md §4.3: a contiguous run
// of inline slots built in memory and issued as one positional write. Any
// item sized for the blob path degrades the whole call to a regular
// batched sequence of Insert calls.
func (e *Engine) WriteMany(items []WriteManyItem) ([]Location, error) {
	payloads := make([][]byte, len(items))
	for i, item := range items {
		b, err := json.Marshal(item.Doc)
		if err != nil {
			return nil, fmt.Errorf("smoldb: encode document: %w", err)
		}
		payloads[i] = b
	}

	e.mu.Lock()
	for _, p := range payloads {
		if e.isBlobSized(len(p)) {
			e.mu.Unlock()
			return e.writeManyDegradedLocked(items)
		}
	}

	locations := make([]Location, len(items))
	run := make([]byte, 0)
	startOffset := int64(e.header.NextSlotOffset)
	cursor := startOffset

	for i, p := range payloads {
		slabSize := allocator.SlabSize(len(p))
		run = append(run, EncodeSlot(FlagActive, p, slabSize)...)
		locations[i] = Location{Offset: cursor, Length: uint32(len(p)), SlabSize: slabSize, IsBlob: false}
		cursor += int64(slabSize)
		e.header.LiveDataSize += uint64(len(p))
	}

	if _, err := e.file.WriteAt(run, startOffset); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("smoldb: write run: %w", err)
	}

	grown := uint64(cursor - startOffset)
	e.header.NextSlotOffset += grown
	e.header.FileSize += grown
	e.header.DocumentCount += uint64(len(items))
	e.dirty = true

	err := e.flushLocked()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return locations, nil
}

func (e *Engine) writeManyDegradedLocked(items []WriteManyItem) ([]Location, error) {
	locations := make([]Location, len(items))
	err := e.Batch(func(b *BatchOps) error {
		for i, item := range items {
			loc, err := b.Write(item.ID, item.Doc)
			if err != nil {
				return err
			}
			locations[i] = loc
		}
		return nil
	})
	return locations, err
}

// --- reset (spec.md §4.3 "reset") ---

// Reset truncates the data file, rewrites a fresh header and clears the
// free list. Blob files are the caller's responsibility.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.file.Truncate(0); err != nil {
		return fmt.Errorf("smoldb: truncate: %w", err)
	}
	e.header = NewHeader()
	e.free.Reset()
	e.dirty = true
	return e.flushLocked()
}

// --- metadata flush ---

func (e *Engine) flushLocked() error {
	if !e.dirty {
		return nil
	}
	if err := e.writeHeaderLocked(); err != nil {
		return err
	}
	e.dirty = false
	e.publishCounters()
	return nil
}

func (e *Engine) writeHeaderLocked() error {
	if _, err := e.file.WriteAt(e.header.Encode(), 0); err != nil {
		return fmt.Errorf("smoldb: write header: %w", err)
	}
	return e.file.Sync()
}

func (e *Engine) publishCounters() {
	if e.state == nil {
		return
	}
	e.state.PublishCounters(e.header.FileSize, e.header.LiveDataSize, e.header.DocumentCount)
}
