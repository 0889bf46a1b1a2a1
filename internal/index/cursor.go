package index

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/yuqi-zhai/passagerank/internal/varbyte"
	apperrors "github.com/yuqi-zhai/passagerank/pkg/errors"
)

// Cursor iterates one term's posting list document-at-a-time. It buffers a
// single block and reads both posting files through its own SectionReaders,
// so cursors of concurrent queries never contend on a file position.
// A Cursor is not safe for concurrent use.
type Cursor struct {
	docids *bufio.Reader
	freqs  *bufio.Reader

	totalBlocks  uint32
	currentBlock uint32

	docBuf   []uint32
	freqBuf  []uint32
	blockPos int

	curDoc  uint32
	curFreq uint32
	alive   bool
	err     error
}

// newCursor seeks both posting files to the term's first block and loads it.
func newCursor(meta TermMeta, docidsFile, freqsFile *os.File) (*Cursor, error) {
	c := &Cursor{
		docids:      bufio.NewReaderSize(io.NewSectionReader(docidsFile, int64(meta.DocIDsOffset), math.MaxInt64-int64(meta.DocIDsOffset)), 16*1024),
		freqs:       bufio.NewReaderSize(io.NewSectionReader(freqsFile, int64(meta.FreqsOffset), math.MaxInt64-int64(meta.FreqsOffset)), 16*1024),
		totalBlocks: meta.Blocks,
		docBuf:      make([]uint32, 0, 128),
		freqBuf:     make([]uint32, 0, 128),
		alive:       true,
	}
	if !c.loadNextBlock() {
		if c.err != nil {
			return nil, c.err
		}
		return c, nil
	}
	c.curDoc = c.docBuf[0]
	c.curFreq = c.freqBuf[0]
	return c, nil
}

// loadNextBlock reads the next block from both streams. DocIDs are
// gap-decoded by prefix sum; the first gap is the absolute first docID. A
// block-length mismatch between the streams is format corruption: the
// cursor exhausts and records ErrCorruptPostings.
func (c *Cursor) loadNextBlock() bool {
	if c.currentBlock >= c.totalBlocks {
		c.alive = false
		return false
	}

	blockLen, err := varbyte.Read(c.docids)
	if err != nil {
		c.fail(fmt.Errorf("reading docids block length: %w", err))
		return false
	}
	c.docBuf = c.docBuf[:0]
	prev := uint32(0)
	for i := uint32(0); i < blockLen; i++ {
		gap, err := varbyte.Read(c.docids)
		if err != nil {
			c.fail(fmt.Errorf("reading docid gap: %w", err))
			return false
		}
		docID := gap
		if i > 0 {
			docID = prev + gap
		}
		c.docBuf = append(c.docBuf, docID)
		prev = docID
	}

	freqLen, err := varbyte.Read(c.freqs)
	if err != nil {
		c.fail(fmt.Errorf("reading freqs block length: %w", err))
		return false
	}
	if freqLen != blockLen {
		c.fail(fmt.Errorf("docids block has %d postings, freqs block has %d: %w",
			blockLen, freqLen, apperrors.ErrCorruptPostings))
		return false
	}
	c.freqBuf = c.freqBuf[:0]
	for i := uint32(0); i < blockLen; i++ {
		tf, err := varbyte.Read(c.freqs)
		if err != nil {
			c.fail(fmt.Errorf("reading frequency: %w", err))
			return false
		}
		c.freqBuf = append(c.freqBuf, tf)
	}

	c.currentBlock++
	c.blockPos = 0
	if blockLen == 0 {
		c.alive = false
		return false
	}
	return true
}

func (c *Cursor) fail(err error) {
	c.err = err
	c.alive = false
}

// Doc returns the current docID. Only meaningful while Valid.
func (c *Cursor) Doc() uint32 {
	return c.curDoc
}

// Freq returns the current term frequency. Only meaningful while Valid.
func (c *Cursor) Freq() uint32 {
	return c.curFreq
}

// Valid reports whether the cursor is positioned on a posting.
func (c *Cursor) Valid() bool {
	return c.alive
}

// Err returns the corruption or IO error that exhausted the cursor early,
// if any.
func (c *Cursor) Err() error {
	return c.err
}

// Next advances to the next posting, crossing block boundaries as needed.
// It returns false when the list is exhausted.
func (c *Cursor) Next() bool {
	if !c.alive {
		return false
	}
	c.blockPos++
	if c.blockPos < len(c.docBuf) {
		c.curDoc = c.docBuf[c.blockPos]
		c.curFreq = c.freqBuf[c.blockPos]
		return true
	}
	if c.loadNextBlock() {
		c.curDoc = c.docBuf[0]
		c.curFreq = c.freqBuf[0]
		return true
	}
	c.alive = false
	return false
}

// NextGEQ advances the cursor to the first posting with docID >= target.
// It returns false when no such posting exists.
func (c *Cursor) NextGEQ(target uint32) bool {
	for c.alive && c.curDoc < target {
		if !c.Next() {
			return false
		}
	}
	return c.alive && c.curDoc >= target
}
