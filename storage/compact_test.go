package storage

import (
	"testing"

	. "github.com/fulldump/biff"
)

func TestCompactPacksOnlyLiveRecords(t *testing.T) {
	e := openTestEngine(t, 0)

	loc1, err := e.Insert("1", map[string]interface{}{"n": 1})
	AssertNil(err)
	loc2, err := e.Insert("2", map[string]interface{}{"n": 2})
	AssertNil(err)
	_, err = e.Insert("3", map[string]interface{}{"n": 3})
	AssertNil(err)

	AssertNil(e.Delete(loc2))

	result, err := e.Compact([]IDLocation{{ID: "1", Location: loc1}})
	AssertNil(err)
	AssertEqual(result.NewFileSize, uint64(HeaderSize+1024))
	AssertTrue(result.BytesFreed > 0)

	newLoc, ok := result.NewLocations["1"]
	AssertTrue(ok)

	doc, err := e.Read(newLoc)
	AssertNil(err)
	AssertEqual(doc["n"].(float64), float64(1))

	AssertEqual(e.Stats().DocumentCount, uint64(1))
	AssertEqual(e.Stats().FreeSlotCount, 0)
}

func TestCompactIsAtomicAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(Options{BasePath: dir, Collection: "things"})
	AssertNil(err)

	loc, err := e.Insert("1", map[string]interface{}{"n": 1})
	AssertNil(err)

	_, err = e.Compact([]IDLocation{{ID: "1", Location: loc}})
	AssertNil(err)
	AssertNil(e.Close())

	e2, err := Open(Options{BasePath: dir, Collection: "things"})
	AssertNil(err)
	defer e2.Close()
	AssertEqual(e2.Stats().DocumentCount, uint64(1))
}
