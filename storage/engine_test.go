package storage

import (
	"testing"

	. "github.com/fulldump/biff"
)

func openTestEngine(t *testing.T, blobThreshold int) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(Options{BasePath: dir, Collection: "things", BlobThreshold: blobThreshold})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineInsertAndRead(t *testing.T) {
	e := openTestEngine(t, 0)

	loc, err := e.Insert("1", map[string]interface{}{"name": "Pablo"})
	AssertNil(err)
	AssertFalse(loc.IsBlob)

	doc, err := e.Read(loc)
	AssertNil(err)
	AssertEqual(doc["name"], "Pablo")

	AssertEqual(e.Stats().DocumentCount, uint64(1))
}

func TestEngineUpdateInPlaceWhenSlabFits(t *testing.T) {
	e := openTestEngine(t, 0)

	loc, err := e.Insert("1", map[string]interface{}{"n": 1})
	AssertNil(err)

	newLoc, err := e.Update("1", map[string]interface{}{"n": 2}, loc)
	AssertNil(err)
	AssertEqual(newLoc.Offset, loc.Offset) // small doc, same slab class, in place

	doc, err := e.Read(newLoc)
	AssertNil(err)
	AssertEqual(doc["n"].(float64), float64(2))
}

func TestEngineUpdateRelocatesWhenTooLarge(t *testing.T) {
	e := openTestEngine(t, 0)

	loc, err := e.Insert("1", map[string]interface{}{"n": 1})
	AssertNil(err)

	big := make([]byte, 2000)
	for i := range big {
		big[i] = 'x'
	}
	newLoc, err := e.Update("1", map[string]interface{}{"blob": string(big)}, loc)
	AssertNil(err)
	AssertTrue(newLoc.SlabSize > loc.SlabSize)
}

func TestEngineDeleteFreesSlotForReuse(t *testing.T) {
	e := openTestEngine(t, 0)

	loc, err := e.Insert("1", map[string]interface{}{"n": 1})
	AssertNil(err)
	AssertNil(e.Delete(loc))

	AssertEqual(e.Stats().DocumentCount, uint64(0))
	AssertEqual(e.Stats().FreeSlotCount, 1)

	loc2, err := e.Insert("2", map[string]interface{}{"n": 2})
	AssertNil(err)
	AssertEqual(loc2.Offset, loc.Offset) // reused, not appended
}

func TestEngineBlobThresholdRoutesToBlobFile(t *testing.T) {
	e := openTestEngine(t, 100)

	big := make([]byte, 500)
	for i := range big {
		big[i] = 'y'
	}
	loc, err := e.Insert("1", map[string]interface{}{"data": string(big)})
	AssertNil(err)
	AssertTrue(loc.IsBlob)

	doc, err := e.Read(loc)
	AssertNil(err)
	AssertEqual(len(doc["data"].(string)), 500)
}

func TestEngineUpdateInlineToBlobKeepsDocumentCountStable(t *testing.T) {
	e := openTestEngine(t, 100)

	loc, err := e.Insert("1", map[string]interface{}{"n": 1})
	AssertNil(err)
	AssertFalse(loc.IsBlob)
	AssertEqual(e.Stats().DocumentCount, uint64(1))

	big := make([]byte, 500)
	for i := range big {
		big[i] = 'x'
	}
	newLoc, err := e.Update("1", map[string]interface{}{"data": string(big)}, loc)
	AssertNil(err)
	AssertTrue(newLoc.IsBlob)
	AssertEqual(e.Stats().DocumentCount, uint64(1))
}

func TestEngineBlobToInlineDowngrade(t *testing.T) {
	e := openTestEngine(t, 100)

	big := make([]byte, 500)
	for i := range big {
		big[i] = 'z'
	}
	loc, err := e.Insert("1", map[string]interface{}{"data": string(big)})
	AssertNil(err)
	AssertTrue(loc.IsBlob)
	AssertEqual(e.Stats().DocumentCount, uint64(1))

	newLoc, err := e.Update("1", map[string]interface{}{"n": 1}, loc)
	AssertNil(err)
	AssertFalse(newLoc.IsBlob)
	AssertEqual(e.Stats().DocumentCount, uint64(1))

	doc, err := e.Read(newLoc)
	AssertNil(err)
	AssertEqual(doc["n"].(float64), float64(1))
}

func TestEngineBatchHoldsLockForWholeCall(t *testing.T) {
	e := openTestEngine(t, 0)

	err := e.Batch(func(b *BatchOps) error {
		if _, err := b.Write("1", map[string]interface{}{"n": 1}); err != nil {
			return err
		}
		if _, err := b.Write("2", map[string]interface{}{"n": 2}); err != nil {
			return err
		}
		return nil
	})
	AssertNil(err)
	AssertEqual(e.Stats().DocumentCount, uint64(2))
}

func TestEngineWriteMany(t *testing.T) {
	e := openTestEngine(t, 0)

	locs, err := e.WriteMany([]WriteManyItem{
		{ID: "1", Doc: map[string]interface{}{"n": 1}},
		{ID: "2", Doc: map[string]interface{}{"n": 2}},
		{ID: "3", Doc: map[string]interface{}{"n": 3}},
	})
	AssertNil(err)
	AssertEqual(len(locs), 3)
	AssertEqual(e.Stats().DocumentCount, uint64(3))
}

func TestEngineReset(t *testing.T) {
	e := openTestEngine(t, 0)

	_, err := e.Insert("1", map[string]interface{}{"n": 1})
	AssertNil(err)
	AssertNil(e.Reset())

	AssertEqual(e.Stats().DocumentCount, uint64(0))
	AssertEqual(e.Stats().FreeSlotCount, 0)
}

func TestEnginePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(Options{BasePath: dir, Collection: "things"})
	AssertNil(err)
	loc, err := e.Insert("1", map[string]interface{}{"name": "Pablo"})
	AssertNil(err)
	AssertNil(e.Close())

	e2, err := Open(Options{BasePath: dir, Collection: "things"})
	AssertNil(err)
	defer e2.Close()

	doc, err := e2.Read(loc)
	AssertNil(err)
	AssertEqual(doc["name"], "Pablo")
	AssertEqual(e2.Stats().DocumentCount, uint64(1))
}
