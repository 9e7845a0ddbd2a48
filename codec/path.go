package codec

import "strings"

// absentT is the sentinel type returned by GetNested when a dotted path
// cannot be resolved. It is distinct from a document field that is present
// and holds JSON null.
type absentT struct{}

// Absent is returned by GetNested when the path does not resolve. Absent
// values are never indexed (spec.md §4.1).
var Absent = absentT{}

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v interface{}) bool {
	_, ok := v.(absentT)
	return ok
}

// GetNested walks a dotted path ("a.b.c") left to right over a decoded JSON
// document (map[string]interface{} at each level). If any intermediate
// value is not an object — including JSON null — resolution stops and
// Absent is returned.
func GetNested(doc map[string]interface{}, path string) interface{} {
	if doc == nil {
		return Absent
	}

	parts := strings.Split(path, ".")
	var cur interface{} = doc

	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return Absent
		}
		v, exists := m[part]
		if !exists {
			return Absent
		}
		cur = v
	}

	return cur
}
