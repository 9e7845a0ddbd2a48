package storage

// Location identifies where a document's current slot lives, as tracked by
// the primary index (spec.md §6.2 primary entry fields).
type Location struct {
	Offset   int64
	Length   uint32
	SlabSize uint32
	IsBlob   bool
}
