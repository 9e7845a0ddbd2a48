// Package index implements the in-memory primary and secondary indexes,
// their binary on-disk format, and the query algorithm that intersects
// secondary postings before falling back to document reads (spec.md §4.6,
// §6.2).
package index

import (
	"github.com/google/btree"
	"github.com/smoldb/smoldb/storage"
)

// primaryEntry is a btree item ordered by insertion sequence, giving the
// "insertion-stable map id -> location" spec.md §4.6 calls for — grounded
// on collectionv2/container.go's BTreeContainer, which orders *Row the
// same way via a Less method plumbed into btree.NewG.
type primaryEntry struct {
	seq      uint64
	id       string
	location storage.Location
}

func primaryLess(a, b *primaryEntry) bool { return a.seq < b.seq }

// Primary is the id -> DocumentLocation index, traversable in the order
// ids were first inserted.
type Primary struct {
	byID    map[string]*primaryEntry
	ordered *btree.BTreeG[*primaryEntry]
	nextSeq uint64
}

// NewPrimary returns an empty primary index.
func NewPrimary() *Primary {
	return &Primary{
		byID:    map[string]*primaryEntry{},
		ordered: btree.NewG(32, primaryLess),
	}
}

// Get returns the location stored for id, if any.
func (p *Primary) Get(id string) (storage.Location, bool) {
	e, ok := p.byID[id]
	if !ok {
		return storage.Location{}, false
	}
	return e.location, true
}

// Has reports whether id is present.
func (p *Primary) Has(id string) bool {
	_, ok := p.byID[id]
	return ok
}

// Len returns the number of documents tracked.
func (p *Primary) Len() int { return len(p.byID) }

// Insert adds a new id at the end of insertion order. Callers must check
// Has first; Insert does not itself enforce the DuplicateId invariant.
func (p *Primary) Insert(id string, loc storage.Location) {
	e := &primaryEntry{seq: p.nextSeq, id: id, location: loc}
	p.nextSeq++
	p.byID[id] = e
	p.ordered.ReplaceOrInsert(e)
}

// Update overwrites the location for an existing id, preserving its
// original insertion position.
func (p *Primary) Update(id string, loc storage.Location) {
	e, ok := p.byID[id]
	if !ok {
		return
	}
	e.location = loc
}

// Delete removes id from the index.
func (p *Primary) Delete(id string) {
	e, ok := p.byID[id]
	if !ok {
		return
	}
	delete(p.byID, id)
	p.ordered.Delete(e)
}

// Ordered returns every (id, location) pair in insertion order, the shape
// compaction needs to rebuild the data file (spec.md §4.7 step 1).
func (p *Primary) Ordered() []storage.IDLocation {
	out := make([]storage.IDLocation, 0, p.ordered.Len())
	p.ordered.Ascend(func(e *primaryEntry) bool {
		out = append(out, storage.IDLocation{ID: e.id, Location: e.location})
		return true
	})
	return out
}

// IDs returns every id, insertion order.
func (p *Primary) IDs() []string {
	out := make([]string, 0, p.ordered.Len())
	p.ordered.Ascend(func(e *primaryEntry) bool {
		out = append(out, e.id)
		return true
	})
	return out
}

// ReplaceLocations overwrites the locations of ids in newLocations without
// touching insertion order, used after compaction (spec.md §4.7 step 6).
func (p *Primary) ReplaceLocations(newLocations map[string]storage.Location) {
	for id, loc := range newLocations {
		if e, ok := p.byID[id]; ok {
			e.location = loc
		}
	}
}
