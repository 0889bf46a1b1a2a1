package index

import (
	"encoding/binary"
	"fmt"
	"os"
)

// DocLengths holds the per-document token counts, indexed by internal docID.
type DocLengths struct {
	lengths []uint32
}

// LoadDocLengths reads doc_len.bin, a packed sequence of little-endian u32
// values ordered by internal docID.
func LoadDocLengths(path string) (*DocLengths, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening doc lengths: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("doc_len.bin size %d is not a multiple of 4", len(data))
	}
	lengths := make([]uint32, len(data)/4)
	for i := range lengths {
		lengths[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return &DocLengths{lengths: lengths}, nil
}

// Length returns the token count of docID, or 0 when out of range so the
// scorer contributes nothing for a dangling posting.
func (d *DocLengths) Length(docID uint32) uint32 {
	if int(docID) < len(d.lengths) {
		return d.lengths[docID]
	}
	return 0
}

// Size returns the number of documents covered.
func (d *DocLengths) Size() int {
	return len(d.lengths)
}
