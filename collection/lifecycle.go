package collection

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/smoldb/smoldb/index"
	"github.com/smoldb/smoldb/smoldberrors"
	"github.com/smoldb/smoldb/storage"
)

// Stats is the collection-level snapshot exposed via getStats (spec.md §6.4).
type Stats struct {
	DocumentCount uint64
	FileSize      uint64
	LiveDataSize  uint64
	IndexedPaths  []string
}

// GetStats returns a snapshot of the collection's counters and indexes.
func (c *Collection) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.storage.Stats()
	return Stats{
		DocumentCount: s.DocumentCount,
		FileSize:      s.FileSize,
		LiveDataSize:  s.LiveDataSize,
		IndexedPaths:  c.indexes.IndexedPaths(),
	}
}

// PersistIndex writes the index file, clearing its dirty flag.
func (c *Collection) PersistIndex() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.Persist(c.indexPath)
}

// Compact rebuilds the data file to contain only live records and
// replaces the primary index's locations accordingly (spec.md §4.7 steps
// 1-6, the collection coordinator performing step 6).
func (c *Collection) Compact() (storage.CompactResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ordered := c.indexes.Ordered()
	result, err := c.storage.Compact(ordered)
	if err != nil {
		return storage.CompactResult{}, err
	}
	c.indexes.ReplaceLocations(result.NewLocations)
	if err := c.indexes.Persist(c.indexPath); err != nil {
		return result, fmt.Errorf("smoldb: persist index after compaction: %w", err)
	}
	return result, nil
}

// Clear removes every document, including the collection's blob files, but
// keeps the collection's configuration (indexes are recreated empty,
// matching their current set of paths).
func (c *Collection) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := c.indexes.IndexedPaths()
	if err := c.storage.Reset(); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(c.basePath, "blobs", c.Name)); err != nil {
		return fmt.Errorf("smoldb: remove blob files: %w", err)
	}
	c.indexes = index.NewManager()
	for _, p := range paths {
		// No documents remain, so this just re-registers an empty posting map.
		if err := c.indexes.CreateIndex(p, c); err != nil {
			return err
		}
	}
	c.cache.Clear()
	return nil
}

// Reset is equivalent to Clear (spec.md §4.3 "reset": "clears the free
// list and all counters"; at the collection level Clear also deletes the
// blob files, which the storage engine's Reset leaves to its caller).
func (c *Collection) Reset() error {
	return c.Clear()
}

// Close flushes and closes the underlying storage engine. The index file
// is not implicitly persisted; callers that want durability across
// restarts must call PersistIndex first (spec.md §8 P8).
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storage.Close()
}

// Batch acquires the write lock once and runs fn with it held, applying
// index/cache bookkeeping for every operation issued through b.
func (c *Collection) Batch(fn func(b *Batch) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.storage.Batch(func(ops *storage.BatchOps) error {
		b := &Batch{c: c, ops: ops}
		return fn(b)
	})
}

// Batch exposes write/update/delete under a Collection.Batch's held lock.
type Batch struct {
	c   *Collection
	ops *storage.BatchOps
}

// Insert adds doc under id within the batch.
func (b *Batch) Insert(id string, doc map[string]interface{}) error {
	if b.c.indexes.Has(id) {
		return &smoldberrors.DuplicateIDError{ID: id}
	}
	loc, err := b.ops.Write(id, doc)
	if err != nil {
		return err
	}
	b.c.indexes.Add(id, loc, doc)
	b.c.cache.Set(id, doc)
	return nil
}

// Update replaces the document stored under id within the batch.
func (b *Batch) Update(id string, doc map[string]interface{}) error {
	old, ok := b.c.indexes.Get(id)
	if !ok {
		return &smoldberrors.DocumentNotFoundError{ID: id}
	}
	oldDoc, err := b.c.storage.Read(old)
	if err != nil {
		return err
	}
	newLoc, err := b.ops.Update(id, doc, old)
	if err != nil {
		return err
	}
	b.c.indexes.Update(id, newLoc, oldDoc, doc)
	b.c.cache.Set(id, doc)
	return nil
}

// Delete removes id within the batch.
func (b *Batch) Delete(id string) (bool, error) {
	loc, ok := b.c.indexes.Get(id)
	if !ok {
		return false, nil
	}
	oldDoc, err := b.c.storage.Read(loc)
	if err != nil {
		return false, err
	}
	if err := b.ops.Delete(loc); err != nil {
		return false, err
	}
	b.c.indexes.Remove(id, oldDoc)
	b.c.cache.Delete(id)
	return true, nil
}

// InsertMany is the bulk-insert fast path of spec.md §4.3 "writeMany",
// with index and cache bookkeeping applied after the underlying run write.
func (c *Collection) InsertMany(items map[string]map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(items))
	wmItems := make([]storage.WriteManyItem, 0, len(items))
	for id, doc := range items {
		if c.indexes.Has(id) {
			return &smoldberrors.DuplicateIDError{ID: id}
		}
		ids = append(ids, id)
		wmItems = append(wmItems, storage.WriteManyItem{ID: id, Doc: doc})
	}

	locations, err := c.storage.WriteMany(wmItems)
	if err != nil {
		return err
	}
	for i, id := range ids {
		doc := items[id]
		c.indexes.Add(id, locations[i], doc)
		c.cache.Set(id, doc)
	}
	return nil
}

// AsyncIterate walks every document in insertion order, calling fn for
// each. Iteration stops early if fn returns false. Unlike Find, it reads
// one document at a time rather than materializing the whole result set
// (spec.md §6.4 "asyncIterate").
func (c *Collection) AsyncIterate(fn func(id string, doc map[string]interface{}) bool) error {
	c.mu.Lock()
	ids := c.indexes.IDs()
	c.mu.Unlock()

	for _, id := range ids {
		c.mu.Lock()
		doc, err := c.getLocked(id)
		c.mu.Unlock()
		if err != nil {
			continue // id may have been deleted since the snapshot was taken
		}
		if !fn(id, doc) {
			break
		}
	}
	return nil
}
