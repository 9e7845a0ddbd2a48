package storage

import (
	"testing"

	. "github.com/fulldump/biff"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{FileSize: 1024, LiveDataSize: 200, DocumentCount: 3, NextSlotOffset: 1024}
	buf := h.Encode()
	AssertEqual(len(buf), HeaderSize)

	decoded, err := DecodeHeader(buf, "test.data")
	AssertNil(err)
	AssertEqual(decoded.FileSize, h.FileSize)
	AssertEqual(decoded.LiveDataSize, h.LiveDataSize)
	AssertEqual(decoded.DocumentCount, h.DocumentCount)
	AssertEqual(decoded.NextSlotOffset, h.NextSlotOffset)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	_, err := DecodeHeader(buf, "test.data")
	AssertNotNil(err)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader([]byte{0x01, 0x02}, "test.data")
	AssertNotNil(err)
}

func TestNewHeaderStartsEmpty(t *testing.T) {
	h := NewHeader()
	AssertEqual(h.FileSize, uint64(HeaderSize))
	AssertEqual(h.NextSlotOffset, uint64(HeaderSize))
	AssertEqual(h.DocumentCount, uint64(0))
}
