// Package codec implements the binary encoding, hashing and filter-matching
// primitives shared by the storage engine and the index manager: fixed-width
// little-endian integers, length-prefixed strings, CRC-32, the canonical
// byte-string serialization used as secondary-index keys, dotted-path
// document lookup and document/filter matching.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PutUint16 / PutUint32 / PutUint64 append a little-endian integer to buf.
func PutUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func PutUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func PutUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutString16 appends a u16 length prefix followed by the UTF-8 bytes of s.
// Used for identifiers and field paths (§4.1).
func PutString16(buf []byte, s string) []byte {
	if len(s) > 0xFFFF {
		panic(fmt.Sprintf("codec: string too long for u16 length prefix: %d bytes", len(s)))
	}
	buf = PutUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// PutString32 appends a u32 length prefix followed by the raw bytes of s.
// Used for serialized secondary-index values (§4.1).
func PutString32(buf []byte, s []byte) []byte {
	buf = PutUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// Reader wraps a byte slice with a cursor, returning io.ErrUnexpectedEOF on
// short reads instead of panicking — the index/data file loaders treat that
// as a corruption signal (IndexCorrupted / CorruptedData).
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Pos() int { return r.pos }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// String16 reads a u16-length-prefixed UTF-8 string.
func (r *Reader) String16() (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bytes32 reads a u32-length-prefixed byte string.
func (r *Reader) Bytes32() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
