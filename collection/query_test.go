package collection

import (
	"testing"

	. "github.com/fulldump/biff"
)

func TestCreateIndexAndFindIds(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)

		AssertNil(c.Insert("1", map[string]interface{}{"status": "active"}))
		AssertNil(c.Insert("2", map[string]interface{}{"status": "inactive"}))
		AssertNil(c.CreateIndex("status"))

		ids, err := c.FindIds(map[string]interface{}{"status": "active"})
		AssertNil(err)
		AssertEqual(len(ids), 1)
		AssertEqual(ids[0], "1")
	})
}

func TestFindOneAndCount(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)
		AssertNil(c.Insert("1", map[string]interface{}{"role": "admin"}))
		AssertNil(c.Insert("2", map[string]interface{}{"role": "user"}))

		id, doc, found, err := c.FindOne(map[string]interface{}{"role": "admin"})
		AssertNil(err)
		AssertTrue(found)
		AssertEqual(id, "1")
		AssertEqual(doc["role"], "admin")

		n, err := c.Count(map[string]interface{}{"role": "user"})
		AssertNil(err)
		AssertEqual(n, 1)
	})
}

func TestDropIndexStopsServingFromPostings(t *testing.T) {
	Environment(t, func(basePath string) {
		c := openTest(t, basePath)
		AssertNil(c.Insert("1", map[string]interface{}{"status": "active"}))
		AssertNil(c.CreateIndex("status"))
		AssertEqual(len(c.GetIndexes()), 1)

		c.DropIndex("status")
		AssertEqual(len(c.GetIndexes()), 0)

		// Falls back to a document-read scan, still finds the match.
		ids, err := c.FindIds(map[string]interface{}{"status": "active"})
		AssertNil(err)
		AssertEqual(len(ids), 1)
	})
}
