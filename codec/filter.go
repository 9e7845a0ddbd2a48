package codec

import (
	"bytes"

	"github.com/SierraSoftworks/connor"
)

// DeepEqual reports whether a and b are equal under the same rule
// Serialize encodes: structural equality, order-sensitive for arrays,
// order-insensitive for object keys, strict type equality for scalars. It
// is defined as byte-equality of the two values' canonical serializations,
// which is exactly the equality spec.md §4.1 requires secondary-index
// lookups to honor — defining DeepEqual in terms of Serialize keeps both
// in lockstep by construction.
func DeepEqual(a, b interface{}) bool {
	return bytes.Equal(Serialize(a), Serialize(b))
}

// Matches reports whether doc satisfies filter: the conjunction over every
// (key, value) entry of filter of DeepEqual(GetNested(doc, key), value)
// (spec.md §4.4 read protocol / §4.6 query algorithm step 5).
//
// Matching is delegated to github.com/SierraSoftworks/connor — the
// teacher's own filter-matching engine (used as
// connor.Match(filter, data) in api/apicollectionv1/0_traverse.go and
// patch.go) — rather than hand-rolled. Dotted filter keys ("profile.country")
// are expanded into the nested-map shape ({"profile":{"country":...}})
// connor's own recursive structural matching expects, since the teacher's
// own call sites never pass dotted keys directly.
func Matches(doc map[string]interface{}, filter map[string]interface{}) bool {
	if len(filter) == 0 {
		return true
	}

	nested := map[string]interface{}{}
	for path, value := range filter {
		setDotted(nested, path, value)
	}

	ok, err := connor.Match(nested, doc)
	if err != nil {
		return false
	}
	return ok
}

// setDotted assigns value at the dotted path inside m, creating
// intermediate maps as needed.
func setDotted(m map[string]interface{}, path string, value interface{}) {
	dot := -1
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		m[path] = value
		return
	}

	head, rest := path[:dot], path[dot+1:]
	child, ok := m[head].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		m[head] = child
	}
	setDotted(child, rest, value)
}
