package index

import (
	"fmt"
	"os"

	"github.com/smoldb/smoldb/codec"
	"github.com/smoldb/smoldb/smoldberrors"
	"github.com/smoldb/smoldb/storage"
)

// Magic numbers for <collection>.idx (spec.md §6.2).
const (
	IndexMagic   uint32 = 0x58444953 // 'S','I','D','X' little-endian
	IndexVersion uint32 = 1
	IndexHeaderSize = 64

	flagIsBlob uint32 = 1 << 0
)

// IndexPath returns the path of a collection's index file.
func IndexPath(basePath, collection string) string {
	return basePath + "/" + collection + ".idx"
}

// Persist writes the whole index file in one buffer-then-write, clearing
// the dirty flag on success (spec.md §4.6 "Dirtiness").
func (m *Manager) Persist(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.encodeLocked()
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("smoldb: write index file: %w", err)
	}
	m.dirty = false
	return nil
}

func (m *Manager) encodeLocked() []byte {
	primaryBuf := make([]byte, 0)
	m.primary.ordered.Ascend(func(e *primaryEntry) bool {
		primaryBuf = codec.PutString16(primaryBuf, e.id)
		primaryBuf = codec.PutUint64(primaryBuf, uint64(e.location.Offset))
		primaryBuf = codec.PutUint32(primaryBuf, e.location.Length)
		primaryBuf = codec.PutUint32(primaryBuf, e.location.SlabSize)
		var flags uint32
		if e.location.IsBlob {
			flags |= flagIsBlob
		}
		primaryBuf = codec.PutUint32(primaryBuf, flags)
		return true
	})

	secondaryBuf := make([]byte, 0)
	for path, sec := range m.secondary {
		secondaryBuf = codec.PutString16(secondaryBuf, path)
		entries := sec.Entries()
		secondaryBuf = codec.PutUint32(secondaryBuf, uint32(len(entries)))
		for value, ids := range entries {
			secondaryBuf = codec.PutString32(secondaryBuf, []byte(value))
			secondaryBuf = codec.PutUint32(secondaryBuf, uint32(len(ids)))
			for id := range ids {
				secondaryBuf = codec.PutString16(secondaryBuf, id)
			}
		}
	}

	primaryOffset := uint32(IndexHeaderSize)
	secondaryOffset := primaryOffset + uint32(len(primaryBuf))

	header := make([]byte, 0, IndexHeaderSize)
	header = codec.PutUint32(header, IndexMagic)
	header = codec.PutUint32(header, IndexVersion)
	header = codec.PutUint16(header, uint16(len(m.secondary)))
	header = codec.PutUint32(header, uint32(m.primary.Len()))
	header = codec.PutUint32(header, primaryOffset)
	header = codec.PutUint32(header, secondaryOffset)
	for len(header) < IndexHeaderSize {
		header = append(header, 0)
	}

	out := make([]byte, 0, len(header)+len(primaryBuf)+len(secondaryBuf))
	out = append(out, header...)
	out = append(out, primaryBuf...)
	out = append(out, secondaryBuf...)
	return out
}

// Load reads and decodes a whole index file, returning a populated Manager.
func Load(path string) (*Manager, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManager(), nil
		}
		return nil, fmt.Errorf("smoldb: read index file: %w", err)
	}
	return decode(buf, path)
}

func decode(buf []byte, path string) (*Manager, error) {
	if len(buf) < IndexHeaderSize {
		return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: "file shorter than header"}
	}

	r := codec.NewReader(buf)
	magic, _ := r.Uint32()
	if magic != IndexMagic {
		return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: fmt.Sprintf("bad magic: %#x", magic)}
	}
	version, _ := r.Uint32()
	if version != IndexVersion {
		return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: fmt.Sprintf("unsupported version: %d", version)}
	}
	secondaryCount, _ := r.Uint16()
	primaryCount, _ := r.Uint32()
	primaryOffset, _ := r.Uint32()
	secondaryOffset, _ := r.Uint32()

	if int(primaryOffset) > len(buf) || int(secondaryOffset) > len(buf) {
		return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: "offsets out of range"}
	}

	m := NewManager()

	pr := codec.NewReader(buf[primaryOffset:])
	for i := uint32(0); i < primaryCount; i++ {
		id, err := pr.String16()
		if err != nil {
			return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: "truncated primary entry: " + err.Error()}
		}
		offset, err := pr.Uint64()
		if err != nil {
			return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: err.Error()}
		}
		length, err := pr.Uint32()
		if err != nil {
			return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: err.Error()}
		}
		slabSize, err := pr.Uint32()
		if err != nil {
			return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: err.Error()}
		}
		flags, err := pr.Uint32()
		if err != nil {
			return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: err.Error()}
		}
		loc := storage.Location{
			Offset:   int64(offset),
			Length:   length,
			SlabSize: slabSize,
			IsBlob:   flags&flagIsBlob != 0,
		}
		m.primary.Insert(id, loc)
	}

	sr := codec.NewReader(buf[secondaryOffset:])
	for i := uint16(0); i < secondaryCount; i++ {
		fieldPath, err := sr.String16()
		if err != nil {
			return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: "truncated secondary block: " + err.Error()}
		}
		entryCount, err := sr.Uint32()
		if err != nil {
			return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: err.Error()}
		}
		sec := NewSecondary(fieldPath)
		for j := uint32(0); j < entryCount; j++ {
			value, err := sr.Bytes32()
			if err != nil {
				return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: err.Error()}
			}
			idCount, err := sr.Uint32()
			if err != nil {
				return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: err.Error()}
			}
			set := make(map[string]struct{}, idCount)
			for k := uint32(0); k < idCount; k++ {
				id, err := sr.String16()
				if err != nil {
					return nil, &smoldberrors.IndexCorruptedError{Path: path, Reason: err.Error()}
				}
				set[id] = struct{}{}
			}
			sec.postings[string(value)] = set
		}
		m.secondary[fieldPath] = sec
	}

	return m, nil
}
