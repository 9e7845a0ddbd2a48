// Package cache implements the collection coordinator's optional bounded
// read cache: move-to-end on touch, evict the insertion-oldest entry on
// overflow (spec.md §4.9). The semantics are exactly what
// github.com/hashicorp/golang-lru already provides — adopted from the
// wider example pack (it appears in weaviate's dependency graph) rather
// than hand-rolled, since a move-to-front-on-access doubly linked list is
// precisely what that package is for.
package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// Cache wraps an LRU of documents keyed by id. A nil *Cache (cacheSize ==
// 0) behaves as disabled: every method is a safe no-op / miss.
type Cache struct {
	lru *lru.Cache
}

// New returns a Cache bounded to size entries, or a disabled Cache if
// size <= 0 (spec.md §4.9 "Disabled when cacheSize = 0").
func New(size int) *Cache {
	if size <= 0 {
		return &Cache{}
	}
	c, err := lru.New(size)
	if err != nil {
		// lru.New only errors on size <= 0, already excluded above.
		return &Cache{}
	}
	return &Cache{lru: c}
}

// Enabled reports whether this cache actually caches anything.
func (c *Cache) Enabled() bool { return c != nil && c.lru != nil }

// Get returns the cached document for id, moving it to the most-recently-
// used position on a hit.
func (c *Cache) Get(id string) (map[string]interface{}, bool) {
	if !c.Enabled() {
		return nil, false
	}
	v, ok := c.lru.Get(id)
	if !ok {
		return nil, false
	}
	return v.(map[string]interface{}), true
}

// Set inserts or refreshes the cached document for id.
func (c *Cache) Set(id string, doc map[string]interface{}) {
	if !c.Enabled() {
		return
	}
	c.lru.Add(id, doc)
}

// Delete invalidates the cached entry for id, if any.
func (c *Cache) Delete(id string) {
	if !c.Enabled() {
		return
	}
	c.lru.Remove(id)
}

// Clear purges every cached entry.
func (c *Cache) Clear() {
	if !c.Enabled() {
		return
	}
	c.lru.Purge()
}
