package collection

import (
	"testing"

	. "github.com/fulldump/biff"
)

func TestCompactReclaimsSpaceAndKeepsLiveDocsReadable(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)

		AssertNil(c.Insert("1", map[string]interface{}{"n": 1}))
		AssertNil(c.Insert("2", map[string]interface{}{"n": 2}))
		_, err := c.Delete("1")
		AssertNil(err)

		statsBefore := c.GetStats()
		result, err := c.Compact()
		AssertNil(err)
		AssertTrue(result.NewFileSize <= statsBefore.FileSize)

		doc, err := c.Get("2")
		AssertNil(err)
		AssertEqual(doc["n"].(float64), float64(2))
	})
}

func TestClearKeepsIndexedPathsButDropsDocuments(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)
		AssertNil(c.Insert("1", map[string]interface{}{"status": "active"}))
		AssertNil(c.CreateIndex("status"))

		AssertNil(c.Clear())

		AssertEqual(len(c.Keys()), 0)
		AssertEqual(len(c.GetIndexes()), 1)

		ids, err := c.FindIds(map[string]interface{}{"status": "active"})
		AssertNil(err)
		AssertEqual(len(ids), 0)
	})
}

func TestBatchAppliesAllOperationsTogether(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)
		AssertNil(c.Insert("1", map[string]interface{}{"n": 1}))

		err := c.Batch(func(b *Batch) error {
			if err := b.Insert("2", map[string]interface{}{"n": 2}); err != nil {
				return err
			}
			if err := b.Update("1", map[string]interface{}{"n": 10}); err != nil {
				return err
			}
			_, err := b.Delete("nonexistent")
			return err
		})
		AssertNil(err)

		doc, err := c.Get("1")
		AssertNil(err)
		AssertEqual(doc["n"].(float64), float64(10))

		AssertTrue(c.Has("2"))
	})
}

func TestBatchPropagatesAMidwayFailure(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)
		AssertNil(c.Insert("1", map[string]interface{}{"n": 1}))

		err := c.Batch(func(b *Batch) error {
			if err := b.Insert("2", map[string]interface{}{"n": 2}); err != nil {
				return err
			}
			return b.Insert("1", map[string]interface{}{"n": 3}) // duplicate, fails
		})
		AssertNotNil(err)
	})
}

func TestInsertMany(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)

		err := c.InsertMany(map[string]map[string]interface{}{
			"1": {"n": 1},
			"2": {"n": 2},
			"3": {"n": 3},
		})
		AssertNil(err)
		AssertEqual(len(c.Keys()), 3)
	})
}

func TestInsertManyRejectsExistingId(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)
		AssertNil(c.Insert("1", map[string]interface{}{"n": 1}))

		err := c.InsertMany(map[string]map[string]interface{}{
			"1": {"n": 99},
		})
		AssertNotNil(err)
	})
}

func TestAsyncIterateVisitsEveryDocumentInInsertionOrder(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)
		AssertNil(c.Insert("1", map[string]interface{}{"n": 1}))
		AssertNil(c.Insert("2", map[string]interface{}{"n": 2}))
		AssertNil(c.Insert("3", map[string]interface{}{"n": 3}))

		var seen []string
		err := c.AsyncIterate(func(id string, doc map[string]interface{}) bool {
			seen = append(seen, id)
			return true
		})
		AssertNil(err)
		AssertEqual(len(seen), 3)
		AssertEqual(seen[0], "1")
	})
}

func TestAsyncIterateStopsEarly(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)
		AssertNil(c.Insert("1", map[string]interface{}{"n": 1}))
		AssertNil(c.Insert("2", map[string]interface{}{"n": 2}))

		count := 0
		err := c.AsyncIterate(func(id string, doc map[string]interface{}) bool {
			count++
			return false
		})
		AssertNil(err)
		AssertEqual(count, 1)
	})
}
