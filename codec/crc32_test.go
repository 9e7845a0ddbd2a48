package codec

import (
	"testing"

	. "github.com/fulldump/biff"
)

func TestChecksumDetectsCorruption(t *testing.T) {
	data := []byte("hello smoldb")
	sum := Checksum(data)

	corrupted := append([]byte{}, data...)
	corrupted[0] ^= 0xFF

	AssertTrue(sum != Checksum(corrupted))
	AssertEqual(Checksum(data), sum)
}
