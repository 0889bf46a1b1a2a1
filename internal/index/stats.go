package index

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Stats holds the collection statistics needed for BM25 scoring.
type Stats struct {
	DocCount      uint64
	AvgDocLength  float64
	TotalTerms    uint64
	TotalPostings uint64
}

// LoadStats parses stats.txt, a file of `key \t value` lines. Unrecognized
// keys are ignored; '#' lines are comments.
func LoadStats(path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("opening stats: %w", err)
	}
	defer f.Close()

	var stats Stats
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "doc_count":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				stats.DocCount = v
			}
		case "avgdl":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				stats.AvgDocLength = v
			}
		case "total_terms":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				stats.TotalTerms = v
			}
		case "total_postings":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				stats.TotalPostings = v
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	return stats, nil
}
