// Package index loads the on-disk index produced by the merger and exposes
// posting-list cursors for document-at-a-time traversal. Everything loaded
// here is immutable after Open and shared across concurrent queries.
package index

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/yuqi-zhai/passagerank/pkg/errors"
)

// TermMeta is one lexicon entry: document frequency, collection frequency,
// byte offsets of the first block in each posting file, and the block count.
type TermMeta struct {
	DF           uint32
	CF           uint64
	DocIDsOffset uint64
	FreqsOffset  uint64
	Blocks       uint32
}

// Lexicon maps terms to their posting-list metadata.
type Lexicon struct {
	terms map[string]TermMeta
}

// LoadLexicon parses lexicon.tsv. Comment lines (leading '#') and empty
// lines are skipped; malformed lines are logged and skipped.
func LoadLexicon(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lexicon: %w", err)
	}
	defer f.Close()

	lex := &Lexicon{terms: make(map[string]TermMeta)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		term, meta, err := parseLexiconLine(line)
		if err != nil {
			slog.Warn("skipping malformed lexicon line", "line", line, "error", err)
			continue
		}
		lex.terms[term] = meta
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	return lex, nil
}

// Find returns the metadata for term.
func (l *Lexicon) Find(term string) (TermMeta, bool) {
	meta, ok := l.terms[term]
	return meta, ok
}

// Len returns the number of terms in the lexicon.
func (l *Lexicon) Len() int {
	return len(l.terms)
}

func parseLexiconLine(line string) (string, TermMeta, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 6 {
		return "", TermMeta{}, fmt.Errorf("expected 6 fields, got %d: %w", len(fields), apperrors.ErrMalformedLine)
	}
	df, err1 := strconv.ParseUint(fields[1], 10, 32)
	cf, err2 := strconv.ParseUint(fields[2], 10, 64)
	docidsOff, err3 := strconv.ParseUint(fields[3], 10, 64)
	freqsOff, err4 := strconv.ParseUint(fields[4], 10, 64)
	blocks, err5 := strconv.ParseUint(fields[5], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return "", TermMeta{}, fmt.Errorf("bad numeric field: %w", apperrors.ErrMalformedLine)
	}
	return fields[0], TermMeta{
		DF:           uint32(df),
		CF:           cf,
		DocIDsOffset: docidsOff,
		FreqsOffset:  freqsOff,
		Blocks:       uint32(blocks),
	}, nil
}
