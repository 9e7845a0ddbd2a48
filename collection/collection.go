// Package collection wires the storage engine, index manager and optional
// read cache into the document-collection surface (spec.md §6.4):
// insert/get/update/upsert/delete/has/count/find/findOne/findIds/getAll/
// keys/createIndex/getIndexes/clear/reset/compact/persistIndex/getStats.
//
// The write path follows collectionv2/collection.go's method-body shape —
// lock, mutate the owned state, done — generalized from its JSON-command-
// log persistence (storage.Persist(command, id, payload)) to this domain's
// slotted data file, which is already durable on its own positional
// writes and needs no separate command log.
package collection

import (
	"fmt"
	"sync"

	"github.com/smoldb/smoldb/cache"
	"github.com/smoldb/smoldb/index"
	"github.com/smoldb/smoldb/sharedstate"
	"github.com/smoldb/smoldb/smoldberrors"
	"github.com/smoldb/smoldb/storage"
)

// Collection is the per-collection coordinator: it owns one storage
// engine, one index manager and one optional cache (spec.md §9 "Ownership
// model").
type Collection struct {
	Name string

	basePath  string
	indexPath string

	storage *storage.Engine
	indexes *index.Manager
	cache   *cache.Cache

	mu sync.Mutex
}

// Config mirrors spec.md §6.5's recognized options, scoped to one collection.
type Config struct {
	BasePath      string
	Name          string
	BlobThreshold int
	CacheSize     int
	State         *sharedstate.State
}

// Open loads (or creates) a collection's data and index files.
func Open(cfg Config) (*Collection, error) {
	eng, err := storage.Open(storage.Options{
		BasePath:      cfg.BasePath,
		Collection:    cfg.Name,
		BlobThreshold: cfg.BlobThreshold,
		State:         cfg.State,
	})
	if err != nil {
		return nil, fmt.Errorf("smoldb: open collection %q: %w", cfg.Name, err)
	}

	idxPath := index.IndexPath(cfg.BasePath, cfg.Name)
	idx, err := index.Load(idxPath)
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("smoldb: load index for collection %q: %w", cfg.Name, err)
	}

	return &Collection{
		Name:      cfg.Name,
		basePath:  cfg.BasePath,
		indexPath: idxPath,
		storage:   eng,
		indexes:   idx,
		cache:     cache.New(cfg.CacheSize),
	}, nil
}

// Read implements index.DocumentSource so the index manager can read
// documents during CreateIndex and query fallback without importing the
// storage package's concrete Engine type.
func (c *Collection) Read(loc storage.Location) (map[string]interface{}, error) {
	return c.storage.Read(loc)
}

// Insert adds a new document under id. Returns DuplicateIDError if id is
// already present.
func (c *Collection) Insert(id string, doc map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexes.Has(id) {
		return &smoldberrors.DuplicateIDError{ID: id}
	}

	loc, err := c.storage.Insert(id, doc)
	if err != nil {
		return err
	}
	c.indexes.Add(id, loc, doc)
	c.cache.Set(id, doc)
	return nil
}

// Get returns the document stored under id.
func (c *Collection) Get(id string) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(id)
}

func (c *Collection) getLocked(id string) (map[string]interface{}, error) {
	if doc, ok := c.cache.Get(id); ok {
		return doc, nil
	}
	loc, ok := c.indexes.Get(id)
	if !ok {
		return nil, &smoldberrors.DocumentNotFoundError{ID: id}
	}
	doc, err := c.storage.Read(loc)
	if err != nil {
		return nil, err
	}
	c.cache.Set(id, doc)
	return doc, nil
}

// Has reports whether id is present.
func (c *Collection) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.Has(id)
}

// Update replaces the document stored under id. Returns
// DocumentNotFoundError if id is missing.
func (c *Collection) Update(id string, doc map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(id, doc)
}

func (c *Collection) updateLocked(id string, doc map[string]interface{}) error {
	old, ok := c.indexes.Get(id)
	if !ok {
		return &smoldberrors.DocumentNotFoundError{ID: id}
	}
	oldDoc, err := c.storage.Read(old)
	if err != nil {
		return err
	}

	newLoc, err := c.storage.Update(id, doc, old)
	if err != nil {
		return err
	}
	c.indexes.Update(id, newLoc, oldDoc, doc)
	c.cache.Set(id, doc)
	return nil
}

// Upsert inserts id if absent, otherwise updates it.
func (c *Collection) Upsert(id string, doc map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexes.Has(id) {
		return c.updateLocked(id, doc)
	}
	loc, err := c.storage.Insert(id, doc)
	if err != nil {
		return err
	}
	c.indexes.Add(id, loc, doc)
	c.cache.Set(id, doc)
	return nil
}

// Delete removes id, returning false if it was not present.
func (c *Collection) Delete(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc, ok := c.indexes.Get(id)
	if !ok {
		return false, nil
	}
	oldDoc, err := c.storage.Read(loc)
	if err != nil {
		return false, err
	}
	if err := c.storage.Delete(loc); err != nil {
		return false, err
	}
	c.indexes.Remove(id, oldDoc)
	c.cache.Delete(id)
	return true, nil
}

// Keys returns every id in insertion order.
func (c *Collection) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes.IDs()
}

// GetAll returns every document, keyed by id.
func (c *Collection) GetAll() (map[string]map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]map[string]interface{}, c.indexes.Len())
	for _, id := range c.indexes.IDs() {
		doc, err := c.getLocked(id)
		if err != nil {
			return nil, err
		}
		out[id] = doc
	}
	return out, nil
}
