package codec

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Undefined is a distinct sentinel from Go's nil, letting callers express
// the "undefined" value spec.md §4.1 distinguishes from JSON null. Absent
// document fields (see GetNested) are represented by Absent, not Undefined:
// absent values are never indexed, while an explicit Undefined value is a
// value like any other and does get serialized (as "undefined").
type Undefined struct{}

// Serialize produces the canonical byte string spec.md §4.1 defines for
// secondary-index keys: a one-byte type tag followed by type-specific
// bytes, such that two values compare equal in the index iff their
// serializations are byte-identical.
func Serialize(value interface{}) []byte {
	switch v := value.(type) {
	case nil:
		return []byte{0x00, 'n', 'u', 'l', 'l'}
	case Undefined:
		return append([]byte{0x00}, []byte("undefined")...)
	case bool:
		if v {
			return []byte{0x01, '1'}
		}
		return []byte{0x01, '0'}
	case string:
		return append([]byte{0x03}, []byte(v)...)
	case float64:
		return append([]byte{0x02}, canonicalNumber(v)...)
	case float32:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case int:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case int8:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case int16:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case int32:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case int64:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case uint:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case uint32:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case uint64:
		return append([]byte{0x02}, canonicalNumber(float64(v))...)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			f = math.NaN()
		}
		return append([]byte{0x02}, canonicalNumber(f)...)
	default:
		// Arrays and objects: JSON with stable key traversal. encoding/json
		// sorts map[string]interface{} keys alphabetically by construction,
		// which is exactly the "stable key traversal" spec.md §4.1 asks for.
		b, err := json.Marshal(canonicalize(v))
		if err != nil {
			b = []byte("null")
		}
		return append([]byte{0x04}, b...)
	}
}

// canonicalize walks arbitrary Go values produced by encoding/json decode
// (map[string]interface{}, []interface{}, scalars) and returns a value
// json.Marshal will encode deterministically. It exists only to make the
// key-sort guarantee explicit at call sites; encoding/json already sorts
// map[string]interface{} keys, so this is effectively a pass-through for
// anything already in that shape.
func canonicalize(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			out[k] = canonicalize(vv[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, item := range vv {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return vv
	}
}

// canonicalNumber renders v with an explicit sign, scientific notation and
// 15 fractional digits, with textual sentinels for the non-finite cases, as
// spec.md §4.1 requires.
func canonicalNumber(v float64) []byte {
	if math.IsNaN(v) {
		return []byte("NaN")
	}
	if math.IsInf(v, 1) {
		return []byte("+Infinity")
	}
	if math.IsInf(v, -1) {
		return []byte("-Infinity")
	}

	s := strconv.FormatFloat(v, 'e', 15, 64)
	if s[0] != '-' {
		s = "+" + s
	}
	return []byte(s)
}
