// Package smoldberrors defines the typed error kinds the storage engine,
// index manager and collection coordinator return (spec.md §7). Every type
// carries a Kind() string so callers can branch with a type switch or
// errors.As without string-matching messages — grounded on the teacher's
// sentinel-error idiom (service/interface.go: ErrorCollectionNotFound),
// generalized here to carry structured fields since most of these kinds
// need an offset, an id or a byte count alongside the message.
package smoldberrors

import "fmt"

// DuplicateIDError is returned by insert on an id that already exists.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string { return fmt.Sprintf("duplicate id: %q", e.ID) }
func (e *DuplicateIDError) Kind() string  { return "DuplicateId" }

// DocumentNotFoundError is returned by update or get on a missing id.
type DocumentNotFoundError struct {
	ID string
}

func (e *DocumentNotFoundError) Error() string { return fmt.Sprintf("document not found: %q", e.ID) }
func (e *DocumentNotFoundError) Kind() string  { return "DocumentNotFound" }

// CorruptedDataError signals an invalid slot header, an unexpectedly clear
// ACTIVE bit, or an unexpected EOF while reading the data file.
type CorruptedDataError struct {
	Offset int64
	Reason string
}

func (e *CorruptedDataError) Error() string {
	return fmt.Sprintf("corrupted data at offset %d: %s", e.Offset, e.Reason)
}
func (e *CorruptedDataError) Kind() string { return "CorruptedData" }

// ChecksumMismatchError signals a CRC mismatch on a slot payload or blob body.
type ChecksumMismatchError struct {
	Offset   int64
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch at offset %d: expected %08x, got %08x", e.Offset, e.Expected, e.Actual)
}
func (e *ChecksumMismatchError) Kind() string { return "ChecksumMismatch" }

// InvalidFileFormatError signals a wrong magic number or unsupported version.
type InvalidFileFormatError struct {
	Path   string
	Reason string
}

func (e *InvalidFileFormatError) Error() string {
	return fmt.Sprintf("invalid file format %q: %s", e.Path, e.Reason)
}
func (e *InvalidFileFormatError) Kind() string { return "InvalidFileFormat" }

// IndexCorruptedError signals an index file shorter than its header or malformed.
type IndexCorruptedError struct {
	Path   string
	Reason string
}

func (e *IndexCorruptedError) Error() string {
	return fmt.Sprintf("corrupted index %q: %s", e.Path, e.Reason)
}
func (e *IndexCorruptedError) Kind() string { return "IndexCorrupted" }

// DocumentTooLargeError is reserved for future enforcement of an upper
// bound on document size; currently informational only (spec.md §7).
type DocumentTooLargeError struct {
	ID   string
	Size int
}

func (e *DocumentTooLargeError) Error() string {
	return fmt.Sprintf("document %q too large: %d bytes", e.ID, e.Size)
}
func (e *DocumentTooLargeError) Kind() string { return "DocumentTooLarge" }

// notInitializedError backs ErrNotInitialized.
type notInitializedError struct{}

func (notInitializedError) Error() string { return "operation issued before init" }
func (notInitializedError) Kind() string  { return "NotInitialized" }

// ErrNotInitialized is the NotInitialized error kind. No function in this
// module returns it: a *database.Database is only obtained from a
// successful Init.
var ErrNotInitialized error = notInitializedError{}
