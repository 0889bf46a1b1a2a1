package index

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// DocTable maps internal docIDs to the collection's external document IDs.
type DocTable struct {
	ids []string
}

// LoadDocTable parses doc_table.txt (`internalDocID \t externalID` lines).
// Internal IDs are dense and 0-based, so the table is stored as a vector.
func LoadDocTable(path string) (*DocTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening doc table: %w", err)
	}
	defer f.Close()

	ids := make([]string, 0, 1024)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idStr, external, ok := strings.Cut(line, "\t")
		if !ok {
			slog.Warn("skipping malformed doc table line", "line", line)
			continue
		}
		docID, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			slog.Warn("skipping malformed doc table line", "line", line)
			continue
		}
		for uint64(len(ids)) <= docID {
			ids = append(ids, "")
		}
		ids[docID] = external
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading doc table: %w", err)
	}
	return &DocTable{ids: ids}, nil
}

// ExternalID returns the external ID for docID, or "" when out of range.
func (t *DocTable) ExternalID(docID uint32) string {
	if int(docID) < len(t.ids) {
		return t.ids[docID]
	}
	return ""
}

// Size returns the number of documents in the table.
func (t *DocTable) Size() int {
	return len(t.ids)
}
