package smoldberrors

import (
	"errors"
	"strings"
	"testing"

	. "github.com/fulldump/biff"
)

func TestErrorKindsAreDistinctAndMatchable(t *testing.T) {
	var err error = &DuplicateIDError{ID: "1"}

	var dup *DuplicateIDError
	AssertTrue(errors.As(err, &dup))
	AssertEqual(dup.ID, "1")
	AssertEqual(dup.Kind(), "DuplicateId")

	var notFound *DocumentNotFoundError
	AssertFalse(errors.As(err, &notFound))
}

func TestErrNotInitializedMessage(t *testing.T) {
	AssertEqual(ErrNotInitialized.Error(), "operation issued before init")
}

func TestChecksumMismatchMessageIncludesOffset(t *testing.T) {
	err := &ChecksumMismatchError{Offset: 128, Expected: 0xAA, Actual: 0xBB}
	AssertTrue(strings.Contains(err.Error(), "offset 128"))
	AssertEqual(err.Kind(), "ChecksumMismatch")
}
