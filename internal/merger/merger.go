// Package merger implements Phase 2 of the indexing pipeline. It consumes
// the globally sorted posting stream, groups postings by term, and writes
// the block-compressed posting files, the lexicon, the document lengths,
// and the collection statistics.
package merger

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuqi-zhai/passagerank/internal/varbyte"
	apperrors "github.com/yuqi-zhai/passagerank/pkg/errors"
)

// BlockSize is the number of postings per compressed block.
const BlockSize = 128

const progressInterval = 10000000

type posting struct {
	docID uint32
	tf    uint32
}

// countingWriter tracks bytes written through a buffered writer so block
// offsets are known without seeking.
type countingWriter struct {
	w *bufio.Writer
	n uint64
}

func (cw *countingWriter) WriteByte(b byte) error {
	if err := cw.w.WriteByte(b); err != nil {
		return err
	}
	cw.n++
	return nil
}

// Merger owns the Phase-2 output files and accumulators.
type Merger struct {
	outDir string

	docidsFile  *os.File
	docids      *countingWriter
	freqsFile   *os.File
	freqs       *countingWriter
	lexiconFile *os.File
	lexicon     *bufio.Writer

	docLengths    []uint32
	docCount      uint64
	totalTerms    uint64
	totalPostings uint64

	logger *slog.Logger
}

// New creates the output directory and opens the compressed posting files
// and the lexicon.
func New(outDir string) (*Merger, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	m := &Merger{
		outDir: outDir,
		logger: slog.Default().With("component", "merger"),
	}

	var err error
	if m.docidsFile, err = os.Create(filepath.Join(outDir, "postings.docids.bin")); err != nil {
		return nil, fmt.Errorf("creating docids file: %w", err)
	}
	if m.freqsFile, err = os.Create(filepath.Join(outDir, "postings.freqs.bin")); err != nil {
		m.docidsFile.Close()
		return nil, fmt.Errorf("creating freqs file: %w", err)
	}
	if m.lexiconFile, err = os.Create(filepath.Join(outDir, "lexicon.tsv")); err != nil {
		m.docidsFile.Close()
		m.freqsFile.Close()
		return nil, fmt.Errorf("creating lexicon: %w", err)
	}
	m.docids = &countingWriter{w: bufio.NewWriterSize(m.docidsFile, 1<<20)}
	m.freqs = &countingWriter{w: bufio.NewWriterSize(m.freqsFile, 1<<20)}
	m.lexicon = bufio.NewWriterSize(m.lexiconFile, 1<<20)

	if _, err := m.lexicon.WriteString("# term\tdf\tcf\tdocids_offset\tfreqs_offset\tblocks_count\n"); err != nil {
		m.closeFiles()
		return nil, fmt.Errorf("writing lexicon header: %w", err)
	}
	return m, nil
}

// Run streams the sorted posting file, groups consecutive lines by term,
// and flushes each completed term's inverted list. Empty lines and lines
// starting with '#' are skipped; malformed lines are logged and skipped.
func (m *Merger) Run(ctx context.Context, inputPath string) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening sorted postings: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var currentTerm string
	postings := make([]posting, 0, 1024)
	var lines uint64

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("merge cancelled: %w", err)
		}
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		term, docID, tf, err := parsePostingLine(line)
		if err != nil {
			m.logger.Warn("skipping malformed posting line", "line", line, "error", err)
			continue
		}

		if uint64(docID)+1 > m.docCount {
			m.docCount = uint64(docID) + 1
		}

		if term != currentTerm {
			if len(postings) > 0 {
				if err := m.flushTerm(currentTerm, postings); err != nil {
					return err
				}
				postings = postings[:0]
			}
			currentTerm = term
		}
		postings = append(postings, posting{docID: docID, tf: tf})

		lines++
		if lines%progressInterval == 0 {
			m.logger.Info("merge progress",
				"postings", lines,
				"terms", m.totalTerms,
				"documents", m.docCount,
			)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading sorted postings: %w", err)
	}
	if len(postings) > 0 {
		if err := m.flushTerm(currentTerm, postings); err != nil {
			return err
		}
	}

	if err := m.finalize(); err != nil {
		return err
	}
	m.logger.Info("phase 2 complete",
		"terms", m.totalTerms,
		"postings", m.totalPostings,
		"documents", m.docCount,
	)
	return nil
}

// flushTerm writes one term's inverted list in blocks of up to BlockSize
// postings and appends its lexicon entry. The postings arrive sorted by
// docID from the external sort.
func (m *Merger) flushTerm(term string, postings []posting) error {
	docidsOffset := m.docids.n
	freqsOffset := m.freqs.n

	df := uint32(len(postings))
	var cf uint64
	blocks := 0

	for start := 0; start < len(postings); start += BlockSize {
		end := start + BlockSize
		if end > len(postings) {
			end = len(postings)
		}
		block := postings[start:end]

		// docIDs: length, first docID verbatim, then gaps.
		if err := varbyte.Write(m.docids, uint32(len(block))); err != nil {
			return fmt.Errorf("writing docids block: %w", err)
		}
		prev := uint32(0)
		for i, p := range block {
			gap := p.docID
			if i > 0 {
				gap = p.docID - prev
			}
			if err := varbyte.Write(m.docids, gap); err != nil {
				return fmt.Errorf("writing docids block: %w", err)
			}
			prev = p.docID
		}

		// freqs: length, then each tf.
		if err := varbyte.Write(m.freqs, uint32(len(block))); err != nil {
			return fmt.Errorf("writing freqs block: %w", err)
		}
		for _, p := range block {
			if err := varbyte.Write(m.freqs, p.tf); err != nil {
				return fmt.Errorf("writing freqs block: %w", err)
			}
			cf += uint64(p.tf)
			if int(p.docID) >= len(m.docLengths) {
				grown := make([]uint32, p.docID+1)
				copy(grown, m.docLengths)
				m.docLengths = grown
			}
			m.docLengths[p.docID] += p.tf
		}
		blocks++
	}

	if _, err := fmt.Fprintf(m.lexicon, "%s\t%d\t%d\t%d\t%d\t%d\n",
		term, df, cf, docidsOffset, freqsOffset, blocks); err != nil {
		return fmt.Errorf("writing lexicon entry: %w", err)
	}

	m.totalTerms++
	m.totalPostings += uint64(df)
	return nil
}

// finalize writes doc_len.bin and stats.txt and closes all output files.
func (m *Merger) finalize() error {
	if err := m.docids.w.Flush(); err != nil {
		return fmt.Errorf("flushing docids: %w", err)
	}
	if err := m.freqs.w.Flush(); err != nil {
		return fmt.Errorf("flushing freqs: %w", err)
	}
	if err := m.lexicon.Flush(); err != nil {
		return fmt.Errorf("flushing lexicon: %w", err)
	}
	if err := m.closeFiles(); err != nil {
		return err
	}

	// Document lengths, packed u32 little-endian, one per docID. Documents
	// past the highest docID seen never occur in postings, so the vector is
	// exactly docCount long.
	if uint64(len(m.docLengths)) < m.docCount {
		grown := make([]uint32, m.docCount)
		copy(grown, m.docLengths)
		m.docLengths = grown
	}
	lenFile, err := os.Create(filepath.Join(m.outDir, "doc_len.bin"))
	if err != nil {
		return fmt.Errorf("creating doc_len.bin: %w", err)
	}
	lw := bufio.NewWriterSize(lenFile, 1<<20)
	var rec [4]byte
	var totalDocLength uint64
	for _, dl := range m.docLengths {
		rec[0] = byte(dl)
		rec[1] = byte(dl >> 8)
		rec[2] = byte(dl >> 16)
		rec[3] = byte(dl >> 24)
		if _, err := lw.Write(rec[:]); err != nil {
			lenFile.Close()
			return fmt.Errorf("writing doc_len.bin: %w", err)
		}
		totalDocLength += uint64(dl)
	}
	if err := lw.Flush(); err != nil {
		lenFile.Close()
		return fmt.Errorf("flushing doc_len.bin: %w", err)
	}
	if err := lenFile.Close(); err != nil {
		return fmt.Errorf("closing doc_len.bin: %w", err)
	}

	avgdl := 0.0
	if m.docCount > 0 {
		avgdl = float64(totalDocLength) / float64(m.docCount)
	}

	statsFile, err := os.Create(filepath.Join(m.outDir, "stats.txt"))
	if err != nil {
		return fmt.Errorf("creating stats.txt: %w", err)
	}
	sw := bufio.NewWriter(statsFile)
	fmt.Fprintf(sw, "# Index Statistics\n")
	fmt.Fprintf(sw, "doc_count\t%d\n", m.docCount)
	fmt.Fprintf(sw, "total_terms\t%d\n", m.totalTerms)
	fmt.Fprintf(sw, "total_postings\t%d\n", m.totalPostings)
	fmt.Fprintf(sw, "avgdl\t%g\n", avgdl)
	fmt.Fprintf(sw, "total_doc_length\t%d\n", totalDocLength)
	if err := sw.Flush(); err != nil {
		statsFile.Close()
		return fmt.Errorf("flushing stats.txt: %w", err)
	}
	if err := statsFile.Close(); err != nil {
		return fmt.Errorf("closing stats.txt: %w", err)
	}
	return nil
}

func (m *Merger) closeFiles() error {
	var firstErr error
	for _, f := range []*os.File{m.docidsFile, m.freqsFile, m.lexiconFile} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing output file: %w", err)
		}
	}
	return firstErr
}

// parsePostingLine splits `term \t docID \t tf`. Missing tabs or bad
// numbers fail the parse.
func parsePostingLine(line string) (term string, docID, tf uint32, err error) {
	tab1 := strings.IndexByte(line, '\t')
	if tab1 < 0 {
		return "", 0, 0, fmt.Errorf("expected two tabs: %w", apperrors.ErrMalformedLine)
	}
	tab2 := strings.IndexByte(line[tab1+1:], '\t')
	if tab2 < 0 {
		return "", 0, 0, fmt.Errorf("expected two tabs: %w", apperrors.ErrMalformedLine)
	}
	tab2 += tab1 + 1

	d, perr := strconv.ParseUint(line[tab1+1:tab2], 10, 32)
	if perr != nil {
		return "", 0, 0, fmt.Errorf("bad docID %q: %w", line[tab1+1:tab2], apperrors.ErrMalformedLine)
	}
	f, perr := strconv.ParseUint(line[tab2+1:], 10, 32)
	if perr != nil {
		return "", 0, 0, fmt.Errorf("bad frequency %q: %w", line[tab2+1:], apperrors.ErrMalformedLine)
	}
	return line[:tab1], uint32(d), uint32(f), nil
}
