package index

import (
	"sync"

	"github.com/smoldb/smoldb/codec"
	"github.com/smoldb/smoldb/storage"
)

// DocumentSource reads a document given its current location. The
// collection coordinator's storage engine satisfies this; keeping it as a
// narrow interface here (rather than importing *storage.Engine directly
// where a read is needed) avoids tying the index manager to concrete
// storage.Engine construction.
type DocumentSource interface {
	Read(loc storage.Location) (map[string]interface{}, error)
}

// Manager owns the primary index and the set of secondary indexes for one
// collection (spec.md §9 "Ownership model").
type Manager struct {
	mu         sync.RWMutex
	primary    *Primary
	secondary  map[string]*Secondary
	dirty      bool
}

// NewManager returns an empty index manager.
func NewManager() *Manager {
	return &Manager{
		primary:   NewPrimary(),
		secondary: map[string]*Secondary{},
	}
}

// Dirty reports whether the index has unpersisted mutations.
func (m *Manager) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// Len returns the number of documents tracked.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.Len()
}

// Has reports whether id is present in the primary index.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.Has(id)
}

// Get returns the location for id.
func (m *Manager) Get(id string) (storage.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.Get(id)
}

// IDs returns every id in insertion order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.IDs()
}

// Ordered returns every (id, location) pair in insertion order.
func (m *Manager) Ordered() []storage.IDLocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary.Ordered()
}

// IndexedPaths returns the dotted field paths currently indexed.
func (m *Manager) IndexedPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.secondary))
	for p := range m.secondary {
		out = append(out, p)
	}
	return out
}

// --- mutation hooks (spec.md §4.6) ---

// Add records a newly inserted document: set the primary entry, then for
// every secondary index insert id into the posting list of the value at
// that index's path, if present.
func (m *Manager) Add(id string, loc storage.Location, doc map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.primary.Insert(id, loc)
	for path, sec := range m.secondary {
		value := codec.GetNested(doc, path)
		sec.Add(id, value)
	}
	m.dirty = true
}

// Update overwrites the primary entry and, for every secondary index,
// moves id from its posting list under oldDoc's value to newDoc's value.
func (m *Manager) Update(id string, loc storage.Location, oldDoc, newDoc map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.primary.Update(id, loc)
	for path, sec := range m.secondary {
		sec.Remove(id, codec.GetNested(oldDoc, path))
		sec.Add(id, codec.GetNested(newDoc, path))
	}
	m.dirty = true
}

// Remove deletes the primary entry and, for every secondary index, removes
// id from the posting list under oldDoc's value.
func (m *Manager) Remove(id string, oldDoc map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.primary.Delete(id)
	for path, sec := range m.secondary {
		sec.Remove(id, codec.GetNested(oldDoc, path))
	}
	m.dirty = true
}

// ReplaceLocations applies the post-compaction location remap (spec.md
// §4.7 step 6) without touching insertion order or secondary postings.
func (m *Manager) ReplaceLocations(newLocations map[string]storage.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primary.ReplaceLocations(newLocations)
	m.dirty = true
}

// CreateIndex is idempotent: if path is not already indexed, it builds an
// empty posting map and scans every live document through source to
// populate it (spec.md §4.6 "createSecondaryIndex").
func (m *Manager) CreateIndex(path string, source DocumentSource) error {
	m.mu.Lock()
	if _, exists := m.secondary[path]; exists {
		m.mu.Unlock()
		return nil
	}
	ordered := m.primary.Ordered()
	m.mu.Unlock()

	sec := NewSecondary(path)
	for _, entry := range ordered {
		doc, err := source.Read(entry.Location)
		if err != nil {
			return err
		}
		sec.Add(entry.ID, codec.GetNested(doc, path))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.secondary[path]; exists {
		return nil
	}
	m.secondary[path] = sec
	m.dirty = true
	return nil
}

// DropIndex removes a secondary index entirely.
func (m *Manager) DropIndex(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.secondary[path]; !exists {
		return
	}
	delete(m.secondary, path)
	m.dirty = true
}

// --- query algorithm (spec.md §4.6) ---

// candidates implements steps 1-3 of the query algorithm: intersect
// secondary postings for every indexed filter key, with no document
// reads. fullyCovered is true iff every filter key was a secondary-
// indexed path.
func (m *Manager) candidates(filter map[string]interface{}) (ids []string, fullyCovered bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var set map[string]struct{}
	matchedAny := false
	fullyCovered = true

	for key, value := range filter {
		sec, ok := m.secondary[key]
		if !ok {
			fullyCovered = false
			continue
		}
		matchedAny = true
		posting := sec.Get(value)
		if len(posting) == 0 {
			return nil, fullyCovered
		}
		if set == nil {
			set = make(map[string]struct{}, len(posting))
			for id := range posting {
				set[id] = struct{}{}
			}
			continue
		}
		set = intersect(set, posting)
		if len(set) == 0 {
			return nil, fullyCovered
		}
	}

	if !matchedAny {
		fullyCovered = false
		return append([]string(nil), m.primary.IDs()...), fullyCovered
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, fullyCovered
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	out := make(map[string]struct{}, len(small))
	for id := range small {
		if _, ok := large[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// filterDocs applies the remaining (non-indexed) filter keys to each
// candidate by reading its document and calling codec.Matches, per step 5
// of the query algorithm. It returns the surviving ids in no particular
// order along with the documents read, so callers building Find results
// don't re-read them.
func (m *Manager) filterDocs(ids []string, filter map[string]interface{}, source DocumentSource) ([]string, map[string]map[string]interface{}, error) {
	survivors := make([]string, 0, len(ids))
	docs := make(map[string]map[string]interface{}, len(ids))

	for _, id := range ids {
		loc, ok := m.Get(id)
		if !ok {
			continue
		}
		doc, err := source.Read(loc)
		if err != nil {
			return nil, nil, err
		}
		if codec.Matches(doc, filter) {
			survivors = append(survivors, id)
			docs[id] = doc
		}
	}
	return survivors, docs, nil
}

// FindIds returns the ids of documents matching filter. When every filter
// key is secondary-indexed, this makes zero document reads (spec.md §8 P7).
func (m *Manager) FindIds(filter map[string]interface{}, source DocumentSource) ([]string, error) {
	ids, fullyCovered := m.candidates(filter)
	if fullyCovered || len(filter) == 0 {
		return ids, nil
	}
	survivors, _, err := m.filterDocs(ids, filter, source)
	return survivors, err
}

// Count returns the number of documents matching filter, with the same
// zero-read guarantee as FindIds when fully covered.
func (m *Manager) Count(filter map[string]interface{}, source DocumentSource) (int, error) {
	ids, err := m.FindIds(filter, source)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Find returns the documents matching filter.
func (m *Manager) Find(filter map[string]interface{}, source DocumentSource) (map[string]map[string]interface{}, error) {
	ids, fullyCovered := m.candidates(filter)

	if !fullyCovered && len(filter) > 0 {
		_, docs, err := m.filterDocs(ids, filter, source)
		return docs, err
	}

	out := make(map[string]map[string]interface{}, len(ids))
	for _, id := range ids {
		loc, ok := m.Get(id)
		if !ok {
			continue
		}
		doc, err := source.Read(loc)
		if err != nil {
			return nil, err
		}
		out[id] = doc
	}
	return out, nil
}

// FindOne returns the first document matching filter, if any.
func (m *Manager) FindOne(filter map[string]interface{}, source DocumentSource) (string, map[string]interface{}, error) {
	docs, err := m.Find(filter, source)
	if err != nil {
		return "", nil, err
	}
	for _, id := range m.IDs() {
		if doc, ok := docs[id]; ok {
			return id, doc, nil
		}
	}
	return "", nil, nil
}
