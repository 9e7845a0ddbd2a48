package index

import (
	"testing"

	. "github.com/fulldump/biff"

	"github.com/smoldb/smoldb/smoldberrors"
	"github.com/smoldb/smoldb/storage"
)

// fakeSource is an in-memory DocumentSource keyed by a synthetic location
// offset, standing in for a storage.Engine in index-manager tests.
type fakeSource struct {
	docs map[int64]map[string]interface{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{docs: map[int64]map[string]interface{}{}}
}

func (f *fakeSource) put(offset int64, doc map[string]interface{}) storage.Location {
	f.docs[offset] = doc
	return storage.Location{Offset: offset}
}

func (f *fakeSource) Read(loc storage.Location) (map[string]interface{}, error) {
	doc, ok := f.docs[loc.Offset]
	if !ok {
		return nil, &smoldberrors.DocumentNotFoundError{}
	}
	return doc, nil
}

func TestManagerAddAndGet(t *testing.T) {
	m := NewManager()
	src := newFakeSource()

	loc := src.put(1, map[string]interface{}{"name": "Pablo"})
	m.Add("1", loc, map[string]interface{}{"name": "Pablo"})

	AssertTrue(m.Has("1"))
	got, ok := m.Get("1")
	AssertTrue(ok)
	AssertEqual(got.Offset, loc.Offset)
}

func TestManagerCreateIndexBackfillsExistingDocuments(t *testing.T) {
	m := NewManager()
	src := newFakeSource()

	m.Add("1", src.put(1, map[string]interface{}{"profile": map[string]interface{}{"country": "es"}}), map[string]interface{}{"profile": map[string]interface{}{"country": "es"}})
	m.Add("2", src.put(2, map[string]interface{}{"profile": map[string]interface{}{"country": "fr"}}), map[string]interface{}{"profile": map[string]interface{}{"country": "fr"}})

	err := m.CreateIndex("profile.country", src)
	AssertNil(err)

	ids, err := m.FindIds(map[string]interface{}{"profile.country": "es"}, src)
	AssertNil(err)
	AssertEqual(len(ids), 1)
	AssertEqual(ids[0], "1")
}

func TestManagerCreateIndexIsIdempotent(t *testing.T) {
	m := NewManager()
	src := newFakeSource()
	AssertNil(m.CreateIndex("x", src))
	AssertNil(m.CreateIndex("x", src))
	AssertEqual(len(m.IndexedPaths()), 1)
}

func TestManagerFindIdsZeroReadsWhenFullyCovered(t *testing.T) {
	m := NewManager()
	src := newFakeSource()

	doc1 := map[string]interface{}{"status": "active"}
	doc2 := map[string]interface{}{"status": "inactive"}
	m.Add("1", src.put(1, doc1), doc1)
	m.Add("2", src.put(2, doc2), doc2)
	AssertNil(m.CreateIndex("status", src))

	// Remove the backing documents: a fully-covered query must not read them.
	src.docs = map[int64]map[string]interface{}{}

	ids, err := m.FindIds(map[string]interface{}{"status": "active"}, src)
	AssertNil(err)
	AssertEqual(len(ids), 1)
	AssertEqual(ids[0], "1")
}

func TestManagerFindFallsBackToDocumentReadsWhenNotIndexed(t *testing.T) {
	m := NewManager()
	src := newFakeSource()

	doc := map[string]interface{}{"name": "Sara", "age": float64(30)}
	m.Add("1", src.put(1, doc), doc)

	docs, err := m.Find(map[string]interface{}{"age": float64(30)}, src)
	AssertNil(err)
	AssertEqual(len(docs), 1)
	_, ok := docs["1"]
	AssertTrue(ok)
}

func TestManagerUpdateMovesSecondaryPosting(t *testing.T) {
	m := NewManager()
	src := newFakeSource()

	oldDoc := map[string]interface{}{"status": "active"}
	loc := src.put(1, oldDoc)
	m.Add("1", loc, oldDoc)
	AssertNil(m.CreateIndex("status", src))

	newDoc := map[string]interface{}{"status": "archived"}
	src.docs[1] = newDoc
	m.Update("1", loc, oldDoc, newDoc)

	active, err := m.FindIds(map[string]interface{}{"status": "active"}, src)
	AssertNil(err)
	AssertEqual(len(active), 0)

	archived, err := m.FindIds(map[string]interface{}{"status": "archived"}, src)
	AssertNil(err)
	AssertEqual(len(archived), 1)
}

func TestManagerRemoveClearsSecondaryPosting(t *testing.T) {
	m := NewManager()
	src := newFakeSource()

	doc := map[string]interface{}{"status": "active"}
	loc := src.put(1, doc)
	m.Add("1", loc, doc)
	AssertNil(m.CreateIndex("status", src))

	m.Remove("1", doc)
	AssertFalse(m.Has("1"))

	ids, err := m.FindIds(map[string]interface{}{"status": "active"}, src)
	AssertNil(err)
	AssertEqual(len(ids), 0)
}

func TestManagerCountWithMultiKeyFilterIntersects(t *testing.T) {
	m := NewManager()
	src := newFakeSource()

	docs := []map[string]interface{}{
		{"status": "active", "role": "admin"},
		{"status": "active", "role": "user"},
		{"status": "inactive", "role": "admin"},
	}
	for i, d := range docs {
		loc := src.put(int64(i+1), d)
		m.Add(string(rune('a'+i)), loc, d)
	}
	AssertNil(m.CreateIndex("status", src))
	AssertNil(m.CreateIndex("role", src))

	n, err := m.Count(map[string]interface{}{"status": "active", "role": "admin"}, src)
	AssertNil(err)
	AssertEqual(n, 1)
}
