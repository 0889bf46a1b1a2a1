package index

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/yuqi-zhai/passagerank/pkg/errors"
)

// Reader is the root of the loaded index. The lexicon, stats, document
// lengths, document table, and content offsets are loaded once at Open and
// shared read-only across all queries; posting files are opened read-only
// and cursors read them through independent positions.
type Reader struct {
	Lexicon    *Lexicon
	Stats      Stats
	DocLengths *DocLengths
	Docs       *DocTable
	Content    *ContentStore

	docidsFile *os.File
	freqsFile  *os.File

	logger *slog.Logger
}

// Open loads an index directory plus the document table written by the
// Phase-1 builder. The content store is looked up next to the doc table
// and is optional: without it, snippet extraction is disabled but queries
// work normally.
func Open(indexDir, docTablePath string) (*Reader, error) {
	logger := slog.Default().With("component", "index-reader")

	lexicon, err := LoadLexicon(filepath.Join(indexDir, "lexicon.tsv"))
	if err != nil {
		return nil, err
	}
	stats, err := LoadStats(filepath.Join(indexDir, "stats.txt"))
	if err != nil {
		return nil, err
	}
	docLengths, err := LoadDocLengths(filepath.Join(indexDir, "doc_len.bin"))
	if err != nil {
		return nil, err
	}
	docs, err := LoadDocTable(docTablePath)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		Lexicon:    lexicon,
		Stats:      stats,
		DocLengths: docLengths,
		Docs:       docs,
		logger:     logger,
	}

	docDir := filepath.Dir(docTablePath)
	contentPath := filepath.Join(docDir, "doc_content.bin")
	offsetPath := filepath.Join(docDir, "doc_offset.bin")
	if fileExists(contentPath) && fileExists(offsetPath) {
		content, err := OpenContentStore(contentPath, offsetPath)
		if err != nil {
			return nil, err
		}
		r.Content = content
	} else {
		logger.Warn("content store not found, snippets disabled", "dir", docDir)
	}

	if r.docidsFile, err = os.Open(filepath.Join(indexDir, "postings.docids.bin")); err != nil {
		r.Close()
		return nil, fmt.Errorf("opening docids file: %w", err)
	}
	if r.freqsFile, err = os.Open(filepath.Join(indexDir, "postings.freqs.bin")); err != nil {
		r.Close()
		return nil, fmt.Errorf("opening freqs file: %w", err)
	}

	logger.Info("index loaded",
		"terms", lexicon.Len(),
		"documents", stats.DocCount,
		"avgdl", stats.AvgDocLength,
		"doc_table_entries", docs.Size(),
	)
	return r, nil
}

// OpenCursor opens a posting-list cursor for term.
func (r *Reader) OpenCursor(term string) (*Cursor, error) {
	meta, ok := r.Lexicon.Find(term)
	if !ok {
		return nil, fmt.Errorf("opening cursor for %q: %w", term, apperrors.ErrTermNotFound)
	}
	return newCursor(meta, r.docidsFile, r.freqsFile)
}

// Close releases all file handles. Cursors must not outlive the reader.
func (r *Reader) Close() error {
	var firstErr error
	if r.Content != nil {
		if err := r.Content.Close(); err != nil {
			firstErr = err
		}
	}
	if r.docidsFile != nil {
		if err := r.docidsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.freqsFile != nil {
		if err := r.freqsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
