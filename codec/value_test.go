package codec

import (
	"encoding/json"
	"math"
	"testing"

	. "github.com/fulldump/biff"
)

func TestSerializeScalars(t *testing.T) {
	Alternative("Serialize", func(a *A) {
		a.Alternative("null and undefined differ", func(a *A) {
			AssertTrue(string(Serialize(nil)) != string(Serialize(Undefined{})))
		})

		a.Alternative("bool", func(a *A) {
			AssertEqual(string(Serialize(true)), string([]byte{0x01, '1'}))
			AssertEqual(string(Serialize(false)), string([]byte{0x01, '0'}))
		})

		a.Alternative("string", func(a *A) {
			AssertEqual(string(Serialize("hello")), string(append([]byte{0x03}, []byte("hello")...)))
		})

		a.Alternative("numbers with equal value serialize identically regardless of type", func(a *A) {
			AssertEqual(string(Serialize(float64(42))), string(Serialize(int(42))))
			AssertEqual(string(Serialize(float64(42))), string(Serialize(json.Number("42"))))
		})

		a.Alternative("NaN and Infinity sentinels", func(a *A) {
			AssertTrue(string(Serialize(math.NaN())) == string(append([]byte{0x02}, []byte("NaN")...)))
			AssertTrue(string(Serialize(math.Inf(1))) == string(append([]byte{0x02}, []byte("+Infinity")...)))
			AssertTrue(string(Serialize(math.Inf(-1))) == string(append([]byte{0x02}, []byte("-Infinity")...)))
		})
	})
}

func TestSerializeObjectKeyOrderIsStable(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2}
	b := map[string]interface{}{"a": 2, "b": 1}
	AssertEqual(string(Serialize(a)), string(Serialize(b)))
}

func TestSerializeArrayOrderMatters(t *testing.T) {
	a := []interface{}{1, 2}
	b := []interface{}{2, 1}
	AssertTrue(string(Serialize(a)) != string(Serialize(b)))
}

func TestDeepEqual(t *testing.T) {
	AssertTrue(DeepEqual(float64(1), int(1)))
	AssertTrue(DeepEqual("x", "x"))
	AssertFalse(DeepEqual("x", "y"))
	AssertFalse(DeepEqual(nil, Undefined{}))
}
