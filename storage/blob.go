package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/smoldb/smoldb/codec"
	"github.com/smoldb/smoldb/smoldberrors"
)

// blobRef is the JSON reference stored inside a BLOB-flagged slot
// (spec.md §4.5: "{path, size, crc32}").
type blobRef struct {
	Path  string `json:"path"`
	Size  int    `json:"size"`
	Crc32 uint32 `json:"crc32"`
}

// blobPath returns <basePath>/blobs/<collection>/<id>.blob.
func blobPath(basePath, collection, id string) string {
	return filepath.Join(basePath, "blobs", collection, id+".blob")
}

// blobRelPath returns <collection>/<id>.blob — the portable form stored in
// blobRef.Path, resolvable relative to any basePath a collection is reopened
// under (spec.md line 36: "relative filename within blob dir").
func blobRelPath(collection, id string) string {
	return filepath.Join(collection, id+".blob")
}

// writeBlob writes payload to a uuid-suffixed temp file in the
// collection's blobs directory, fsyncs it, and renames it over the final
// path — the same build-then-rename discipline as the data file's
// compaction swap, so a crash mid-write never leaves a partial blob at
// its final name (spec.md §4.5; SPEC_FULL.md §4.10 "blob temp files
// during a failed write use a uuid suffix before the final rename").
func writeBlob(basePath, collection, id string, payload []byte) (blobRef, error) {
	path := blobPath(basePath, collection, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return blobRef{}, fmt.Errorf("smoldb: create blob dir: %w", err)
	}

	tmpPath := path + ".tmp-" + uuid.New().String()
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return blobRef{}, fmt.Errorf("smoldb: create blob temp file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return blobRef{}, fmt.Errorf("smoldb: write blob temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return blobRef{}, fmt.Errorf("smoldb: fsync blob temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return blobRef{}, fmt.Errorf("smoldb: close blob temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return blobRef{}, fmt.Errorf("smoldb: rename blob into place: %w", err)
	}

	return blobRef{Path: blobRelPath(collection, id), Size: len(payload), Crc32: codec.Checksum(payload)}, nil
}

// readBlob loads and verifies the blob body a reference points at, resolving
// ref.Path against the live basePath so a collection relocated since the
// reference was written still reads correctly (spec.md §4.4: "verify
// crc32(blobBytes) == ref.crc32").
func readBlob(basePath string, ref blobRef) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(basePath, "blobs", ref.Path))
	if err != nil {
		return nil, fmt.Errorf("smoldb: read blob: %w", err)
	}
	actual := codec.Checksum(data)
	if actual != ref.Crc32 {
		return nil, &smoldberrors.ChecksumMismatchError{Expected: ref.Crc32, Actual: actual}
	}
	return data, nil
}

// deleteBlob removes the blob file a reference points at. Missing files
// are not an error: downgrade-to-inline paths that already deleted it
// must stay idempotent.
func deleteBlob(basePath string, ref blobRef) error {
	err := os.Remove(filepath.Join(basePath, "blobs", ref.Path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("smoldb: delete blob: %w", err)
	}
	return nil
}

func encodeBlobRef(ref blobRef) []byte {
	b, _ := json.Marshal(ref)
	return b
}

func decodeBlobRef(payload []byte) (blobRef, error) {
	var ref blobRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return blobRef{}, &smoldberrors.CorruptedDataError{Reason: "malformed blob reference: " + err.Error()}
	}
	return ref, nil
}
