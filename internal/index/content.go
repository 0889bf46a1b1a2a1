package index

import (
	"encoding/binary"
	"fmt"
	"os"

	apperrors "github.com/yuqi-zhai/passagerank/pkg/errors"
)

type contentOffset struct {
	offset uint64
	length uint32
}

// ContentStore serves the cleaned document bytes stored by the Phase-1
// builder, addressed through the packed offset table. Fetch allocates a
// fresh buffer per lookup; reads go through ReadAt so concurrent queries
// never share a file position.
type ContentStore struct {
	file    *os.File
	offsets []contentOffset
}

// OpenContentStore opens doc_content.bin read-only and loads doc_offset.bin
// (packed u64 offset + u32 length records, little-endian).
func OpenContentStore(contentPath, offsetPath string) (*ContentStore, error) {
	data, err := os.ReadFile(offsetPath)
	if err != nil {
		return nil, fmt.Errorf("opening content offsets: %w", err)
	}
	if len(data)%12 != 0 {
		return nil, fmt.Errorf("doc_offset.bin size %d is not a multiple of 12", len(data))
	}
	offsets := make([]contentOffset, len(data)/12)
	for i := range offsets {
		offsets[i] = contentOffset{
			offset: binary.LittleEndian.Uint64(data[i*12:]),
			length: binary.LittleEndian.Uint32(data[i*12+8:]),
		}
	}

	f, err := os.Open(contentPath)
	if err != nil {
		return nil, fmt.Errorf("opening content file: %w", err)
	}
	return &ContentStore{file: f, offsets: offsets}, nil
}

// Fetch returns the full content bytes of docID. The stored length excludes
// the record-separating newline, so the returned bytes are exactly the
// cleaned document.
func (s *ContentStore) Fetch(docID uint32) ([]byte, error) {
	if int(docID) >= len(s.offsets) {
		return nil, fmt.Errorf("fetching content for doc %d: %w", docID, apperrors.ErrDocNotFound)
	}
	rec := s.offsets[docID]
	buf := make([]byte, rec.length)
	if _, err := s.file.ReadAt(buf, int64(rec.offset)); err != nil {
		return nil, fmt.Errorf("reading content for doc %d: %w", docID, err)
	}
	return buf, nil
}

// Size returns the number of documents in the store.
func (s *ContentStore) Size() int {
	return len(s.offsets)
}

// Close closes the content file.
func (s *ContentStore) Close() error {
	return s.file.Close()
}
