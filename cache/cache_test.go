package cache

import (
	"testing"

	. "github.com/fulldump/biff"
)

func TestDisabledCacheIsAlwaysAMiss(t *testing.T) {
	c := New(0)
	AssertFalse(c.Enabled())

	c.Set("1", map[string]interface{}{"n": 1})
	_, ok := c.Get("1")
	AssertFalse(ok)
}

func TestCacheSetAndGet(t *testing.T) {
	c := New(2)
	AssertTrue(c.Enabled())

	c.Set("1", map[string]interface{}{"n": 1})
	doc, ok := c.Get("1")
	AssertTrue(ok)
	AssertEqual(doc["n"], 1)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Set("1", map[string]interface{}{"n": 1})
	c.Set("2", map[string]interface{}{"n": 2})

	c.Get("1") // touch 1, making 2 the least recently used
	c.Set("3", map[string]interface{}{"n": 3})

	_, ok := c.Get("2")
	AssertFalse(ok)

	_, ok = c.Get("1")
	AssertTrue(ok)
	_, ok = c.Get("3")
	AssertTrue(ok)
}

func TestCacheDeleteAndClear(t *testing.T) {
	c := New(2)
	c.Set("1", map[string]interface{}{"n": 1})
	c.Delete("1")
	_, ok := c.Get("1")
	AssertFalse(ok)

	c.Set("2", map[string]interface{}{"n": 2})
	c.Clear()
	_, ok = c.Get("2")
	AssertFalse(ok)
}
