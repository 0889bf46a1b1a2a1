// Package builder implements Phase 1 of the indexing pipeline. It streams
// documents, assigns dense internal docIDs, writes the document table,
// content and offset files, and emits flat postings partitioned by a byte
// budget. The partitions are concatenated and sorted externally before
// Phase 2 consumes them.
package builder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/yuqi-zhai/passagerank/internal/tokenizer"
)

const (
	// DefaultPartSizeGB is the partition byte budget when none is given.
	DefaultPartSizeGB = 2

	progressInterval = 100000
)

// Builder owns the Phase-1 output files. Not safe for concurrent use; the
// pipeline feeds it one document at a time.
type Builder struct {
	outDir     string
	partBudget int64

	docTableFile *os.File
	docTable     *bufio.Writer
	contentFile  *os.File
	content      *bufio.Writer
	offsetFile   *os.File
	offsets      *bufio.Writer
	contentPos   uint64

	partFile  *os.File
	part      *bufio.Writer
	partBytes int64
	partNum   int

	nextDocID   uint32
	totalTokens uint64
	skipped     uint64

	logger *slog.Logger
}

// New creates the output directory and opens the Phase-1 files. partSizeGB
// values below 1 fall back to the default.
func New(outDir string, partSizeGB int) (*Builder, error) {
	if partSizeGB < 1 {
		partSizeGB = DefaultPartSizeGB
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	b := &Builder{
		outDir:     outDir,
		partBudget: int64(partSizeGB) << 30,
		logger:     slog.Default().With("component", "builder"),
	}

	var err error
	if b.docTableFile, err = os.Create(filepath.Join(outDir, "doc_table.txt")); err != nil {
		return nil, fmt.Errorf("creating doc table: %w", err)
	}
	if b.contentFile, err = os.Create(filepath.Join(outDir, "doc_content.bin")); err != nil {
		b.docTableFile.Close()
		return nil, fmt.Errorf("creating content file: %w", err)
	}
	if b.offsetFile, err = os.Create(filepath.Join(outDir, "doc_offset.bin")); err != nil {
		b.docTableFile.Close()
		b.contentFile.Close()
		return nil, fmt.Errorf("creating offset file: %w", err)
	}
	b.docTable = bufio.NewWriter(b.docTableFile)
	b.content = bufio.NewWriterSize(b.contentFile, 1<<20)
	b.offsets = bufio.NewWriter(b.offsetFile)

	if err := b.openPartition(); err != nil {
		b.docTableFile.Close()
		b.contentFile.Close()
		b.offsetFile.Close()
		return nil, err
	}
	return b, nil
}

// AddDocument ingests one document: records the external ID, stores the
// cleaned content, and appends the document's postings to the current
// partition.
func (b *Builder) AddDocument(externalID, content string) error {
	docID := b.nextDocID

	if _, err := fmt.Fprintf(b.docTable, "%d\t%s\n", docID, externalID); err != nil {
		return fmt.Errorf("writing doc table entry: %w", err)
	}

	cleaned := cleanContent(content)
	offset := b.contentPos
	if _, err := b.content.WriteString(cleaned); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	if err := b.content.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	b.contentPos += uint64(len(cleaned)) + 1

	// 12-byte record: u64 offset, u32 length. Length excludes the newline.
	var rec [12]byte
	binary.LittleEndian.PutUint64(rec[0:8], offset)
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(cleaned)))
	if _, err := b.offsets.Write(rec[:]); err != nil {
		return fmt.Errorf("writing offset record: %w", err)
	}

	freqs := tokenizer.TermFrequencies(content)
	terms := make([]string, 0, len(freqs))
	for term := range freqs {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	docIDStr := strconv.FormatUint(uint64(docID), 10)
	for _, term := range terms {
		tf := freqs[term]
		line := term + "\t" + docIDStr + "\t" + strconv.FormatUint(uint64(tf), 10) + "\n"
		if _, err := b.part.WriteString(line); err != nil {
			return fmt.Errorf("writing posting: %w", err)
		}
		b.partBytes += int64(len(line))
		b.totalTokens += uint64(tf)
	}

	b.nextDocID++
	// Rotate after the whole document so a partition never splits one.
	if b.partBytes >= b.partBudget {
		if err := b.rotatePartition(); err != nil {
			return err
		}
	}
	return nil
}

// ProcessFile streams a tab-separated collection file (externalID \t
// content, one document per line). Lines without a tab are skipped.
func (b *Builder) ProcessFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var lines uint64
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest cancelled: %w", err)
		}
		lines++
		line := scanner.Text()
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			b.skipped++
			continue
		}
		if err := b.AddDocument(line[:tab], line[tab+1:]); err != nil {
			return err
		}
		if lines%progressInterval == 0 {
			b.logger.Info("ingest progress",
				"documents", b.nextDocID,
				"partitions", b.partNum+1,
				"tokens", b.totalTokens,
			)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}
	return nil
}

// Close flushes and closes every output file. The builder is unusable
// afterwards.
func (b *Builder) Close() error {
	var firstErr error
	flush := func(w *bufio.Writer, f *os.File, name string) {
		if err := w.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flushing %s: %w", name, err)
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", name, err)
		}
	}
	flush(b.part, b.partFile, "partition")
	flush(b.docTable, b.docTableFile, "doc table")
	flush(b.content, b.contentFile, "content file")
	flush(b.offsets, b.offsetFile, "offset file")

	b.logger.Info("phase 1 complete",
		"documents", b.nextDocID,
		"partitions", b.partNum+1,
		"tokens", b.totalTokens,
		"skipped_lines", b.skipped,
	)
	return firstErr
}

// DocCount returns the number of documents ingested so far.
func (b *Builder) DocCount() uint32 {
	return b.nextDocID
}

// PartitionCount returns the number of partition files opened so far.
func (b *Builder) PartitionCount() int {
	return b.partNum + 1
}

func (b *Builder) openPartition() error {
	path := filepath.Join(b.outDir, fmt.Sprintf("postings_part_%d.tsv", b.partNum))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating partition file: %w", err)
	}
	b.partFile = f
	b.part = bufio.NewWriterSize(f, 1<<20)
	b.partBytes = 0
	return nil
}

func (b *Builder) rotatePartition() error {
	if err := b.part.Flush(); err != nil {
		return fmt.Errorf("flushing partition: %w", err)
	}
	if err := b.partFile.Close(); err != nil {
		return fmt.Errorf("closing partition: %w", err)
	}
	b.logger.Info("partition rotated", "partition", b.partNum, "bytes", b.partBytes)
	b.partNum++
	return b.openPartition()
}

// cleanContent replaces tab, newline, and carriage-return bytes with spaces
// so every stored document occupies a single record line.
func cleanContent(content string) string {
	if !strings.ContainsAny(content, "\t\n\r") {
		return content
	}
	var sb strings.Builder
	sb.Grow(len(content))
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '\t', '\n', '\r':
			sb.WriteByte(' ')
		default:
			sb.WriteByte(content[i])
		}
	}
	return sb.String()
}
