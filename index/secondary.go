package index

import "github.com/smoldb/smoldb/codec"

// Secondary is one field path's posting-list index: serialized value bytes
// (as a string map key, the idiomatic Go stand-in for a byte-string key) to
// the set of ids holding that value at the path (spec.md §4.6).
type Secondary struct {
	Path     string
	postings map[string]map[string]struct{}
}

// NewSecondary returns an empty secondary index over path.
func NewSecondary(path string) *Secondary {
	return &Secondary{Path: path, postings: map[string]map[string]struct{}{}}
}

// Add inserts id into the posting list for value, unless value is Absent
// (spec.md §4.6 "On add": "if present, insert the id").
func (s *Secondary) Add(id string, value interface{}) {
	if codec.IsAbsent(value) {
		return
	}
	key := string(codec.Serialize(value))
	set, ok := s.postings[key]
	if !ok {
		set = map[string]struct{}{}
		s.postings[key] = set
	}
	set[id] = struct{}{}
}

// Remove deletes id from the posting list for value, pruning the list if
// it becomes empty.
func (s *Secondary) Remove(id string, value interface{}) {
	if codec.IsAbsent(value) {
		return
	}
	key := string(codec.Serialize(value))
	set, ok := s.postings[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(s.postings, key)
	}
}

// Get returns the posting set for value, or nil if there is none.
func (s *Secondary) Get(value interface{}) map[string]struct{} {
	key := string(codec.Serialize(value))
	return s.postings[key]
}

// Entries exposes every (serializedValue, ids) pair for persistence.
func (s *Secondary) Entries() map[string]map[string]struct{} {
	return s.postings
}
