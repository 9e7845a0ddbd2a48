package codec

import (
	"testing"

	. "github.com/fulldump/biff"
)

func TestGetNested(t *testing.T) {
	doc := map[string]interface{}{
		"profile": map[string]interface{}{
			"country": "es",
		},
		"tags": []interface{}{"a", "b"},
		"note": nil,
	}

	Alternative("GetNested", func(a *A) {
		a.Alternative("resolves a nested path", func(a *A) {
			AssertEqual(GetNested(doc, "profile.country"), "es")
		})

		a.Alternative("returns Absent for a missing path", func(a *A) {
			AssertTrue(IsAbsent(GetNested(doc, "profile.city")))
		})

		a.Alternative("returns Absent when an intermediate value is not an object", func(a *A) {
			AssertTrue(IsAbsent(GetNested(doc, "tags.0")))
		})

		a.Alternative("present JSON null is not Absent", func(a *A) {
			v := GetNested(doc, "note")
			AssertFalse(IsAbsent(v))
			AssertNil(v)
		})

		a.Alternative("nil document is Absent", func(a *A) {
			AssertTrue(IsAbsent(GetNested(nil, "anything")))
		})
	})
}
