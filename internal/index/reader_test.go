package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/yuqi-zhai/passagerank/internal/builder"
	"github.com/yuqi-zhai/passagerank/internal/merger"
	"github.com/yuqi-zhai/passagerank/internal/varbyte"
)

// buildIndex runs the full two-pass pipeline over docs (externalID ->
// content) with an in-test sort standing in for the external one.
func buildIndex(t *testing.T, docs [][2]string) string {
	t.Helper()
	dir := t.TempDir()

	b, err := builder.New(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range docs {
		if err := b.AddDocument(d[0], d[1]); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	sortPostings(t, dir)

	m, err := merger.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(context.Background(), filepath.Join(dir, "postings_sorted.tsv")); err != nil {
		t.Fatal(err)
	}
	return dir
}

// sortPostings concatenates the partitions and sorts lines by (term asc,
// docID numeric asc), the external sort contract.
func sortPostings(t *testing.T, dir string) {
	t.Helper()
	parts, err := filepath.Glob(filepath.Join(dir, "postings_part_*.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	type row struct {
		term  string
		docID uint64
		line  string
	}
	var rows []row
	for _, part := range parts {
		data, err := os.ReadFile(part)
		if err != nil {
			t.Fatal(err)
		}
		for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
			if line == "" {
				continue
			}
			fields := strings.SplitN(line, "\t", 3)
			var docID uint64
			fmt.Sscanf(fields[1], "%d", &docID)
			rows = append(rows, row{term: fields[0], docID: docID, line: line})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].term != rows[j].term {
			return rows[i].term < rows[j].term
		}
		return rows[i].docID < rows[j].docID
	})
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(r.line)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(dir, "postings_sorted.tsv"), []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
}

func openReader(t *testing.T, dir string) *Reader {
	t.Helper()
	r, err := Open(dir, filepath.Join(dir, "doc_table.txt"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpenLoadsEverything(t *testing.T) {
	dir := buildIndex(t, [][2]string{
		{"D100", "cat dog cat"},
		{"D200", "dog bird"},
		{"D300", "cat"},
	})
	r := openReader(t, dir)

	if r.Stats.DocCount != 3 {
		t.Errorf("DocCount = %d, want 3", r.Stats.DocCount)
	}
	if want := 2.0; r.Stats.AvgDocLength != want {
		t.Errorf("AvgDocLength = %g, want %g", r.Stats.AvgDocLength, want)
	}
	if r.Lexicon.Len() != 3 {
		t.Errorf("lexicon has %d terms, want 3", r.Lexicon.Len())
	}
	meta, ok := r.Lexicon.Find("cat")
	if !ok || meta.DF != 2 || meta.CF != 3 {
		t.Errorf("cat meta = %+v ok=%v, want df=2 cf=3", meta, ok)
	}
	if _, ok := r.Lexicon.Find("xyzzy"); ok {
		t.Error("unknown term should not resolve")
	}
	if got := r.DocLengths.Length(0); got != 3 {
		t.Errorf("dl[0] = %d, want 3", got)
	}
	if got := r.DocLengths.Length(99); got != 0 {
		t.Errorf("out-of-range doc length = %d, want 0", got)
	}
	if got := r.Docs.ExternalID(1); got != "D200" {
		t.Errorf("ExternalID(1) = %q, want D200", got)
	}
	if r.Content == nil {
		t.Fatal("content store should be loaded")
	}
	content, err := r.Content.Fetch(1)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "dog bird" {
		t.Errorf("content of doc 1 = %q", content)
	}
	if _, err := r.Content.Fetch(42); err == nil {
		t.Error("fetch of missing doc should fail")
	}
}

func TestCursorWalk(t *testing.T) {
	dir := buildIndex(t, [][2]string{
		{"D0", "cat dog"},
		{"D1", "dog"},
		{"D2", "cat cat dog"},
	})
	r := openReader(t, dir)

	c, err := r.OpenCursor("cat")
	if err != nil {
		t.Fatal(err)
	}
	var docs []uint32
	var freqs []uint32
	for c.Valid() {
		docs = append(docs, c.Doc())
		freqs = append(freqs, c.Freq())
		c.Next()
	}
	if fmt.Sprint(docs) != "[0 2]" {
		t.Errorf("cat docs = %v, want [0 2]", docs)
	}
	if fmt.Sprint(freqs) != "[1 2]" {
		t.Errorf("cat freqs = %v, want [1 2]", freqs)
	}
	if c.Err() != nil {
		t.Errorf("unexpected cursor error: %v", c.Err())
	}
}

func TestCursorMonotoneAndConserved(t *testing.T) {
	// 300 documents all containing "common"; every 3rd also contains "rare".
	docs := make([][2]string, 300)
	for i := range docs {
		content := "common filler"
		if i%3 == 0 {
			content += " rare"
		}
		docs[i] = [2]string{fmt.Sprintf("D%d", i), content}
	}
	dir := buildIndex(t, docs)
	r := openReader(t, dir)

	meta, _ := r.Lexicon.Find("common")
	if meta.DF != 300 || meta.Blocks != 3 {
		t.Fatalf("common meta = %+v, want df=300 blocks=3", meta)
	}

	c, err := r.OpenCursor("common")
	if err != nil {
		t.Fatal(err)
	}
	var count uint32
	var cf uint64
	prev := int64(-1)
	for c.Valid() {
		if int64(c.Doc()) <= prev {
			t.Fatalf("docIDs not strictly increasing: %d after %d", c.Doc(), prev)
		}
		prev = int64(c.Doc())
		cf += uint64(c.Freq())
		count++
		c.Next()
	}
	if count != meta.DF {
		t.Errorf("walked %d postings, df = %d", count, meta.DF)
	}
	if cf != meta.CF {
		t.Errorf("summed tf = %d, cf = %d", cf, meta.CF)
	}
}

func TestCursorNextGEQ(t *testing.T) {
	// A term with 257 postings spans 3 blocks; seeking to the 200th
	// posting's docID lands mid-second-block.
	docs := make([][2]string, 257)
	for i := range docs {
		docs[i] = [2]string{fmt.Sprintf("D%d", i), "common"}
	}
	dir := buildIndex(t, docs)
	r := openReader(t, dir)

	c, err := r.OpenCursor("common")
	if err != nil {
		t.Fatal(err)
	}
	if !c.NextGEQ(199) {
		t.Fatal("NextGEQ(199) should succeed")
	}
	if c.Doc() != 199 {
		t.Errorf("Doc after NextGEQ(199) = %d, want 199", c.Doc())
	}

	// Seeking to the current position is a no-op.
	if !c.NextGEQ(199) || c.Doc() != 199 {
		t.Errorf("NextGEQ to current doc moved to %d", c.Doc())
	}

	// Into the final short block.
	if !c.NextGEQ(256) || c.Doc() != 256 {
		t.Errorf("NextGEQ(256) landed on %d", c.Doc())
	}

	// Past the end exhausts.
	if c.NextGEQ(257) {
		t.Error("NextGEQ past the last docID should exhaust")
	}
	if c.Valid() {
		t.Error("cursor should be exhausted")
	}
}

func TestCursorGapTargets(t *testing.T) {
	// Postings only at even docIDs: NextGEQ to an absent odd docID lands on
	// the next even one.
	docs := make([][2]string, 20)
	for i := range docs {
		content := "filler"
		if i%2 == 0 {
			content = "even"
		}
		docs[i] = [2]string{fmt.Sprintf("D%d", i), content}
	}
	dir := buildIndex(t, docs)
	r := openReader(t, dir)

	c, err := r.OpenCursor("even")
	if err != nil {
		t.Fatal(err)
	}
	if !c.NextGEQ(7) || c.Doc() != 8 {
		t.Errorf("NextGEQ(7) landed on %d, want 8", c.Doc())
	}
}

// writeCorruptIndex builds an index directory by hand where term "bad" has
// a freqs block whose length disagrees with the docids block.
func writeCorruptIndex(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	var docids, freqs []byte
	var lexicon strings.Builder
	lexicon.WriteString("# term\tdf\tcf\tdocids_offset\tfreqs_offset\tblocks_count\n")

	// Term "good": one clean block, docs 0 and 1, tf 1 each.
	goodDocidsOff, goodFreqsOff := len(docids), len(freqs)
	docids = varbyte.Append(docids, 2)
	docids = varbyte.Append(docids, 0)
	docids = varbyte.Append(docids, 1)
	freqs = varbyte.Append(freqs, 2)
	freqs = varbyte.Append(freqs, 1)
	freqs = varbyte.Append(freqs, 1)
	fmt.Fprintf(&lexicon, "good\t2\t2\t%d\t%d\t1\n", goodDocidsOff, goodFreqsOff)

	// Term "bad": first block clean, second block's freqs length mismatched.
	badDocidsOff, badFreqsOff := len(docids), len(freqs)
	docids = varbyte.Append(docids, 2)
	docids = varbyte.Append(docids, 0)
	docids = varbyte.Append(docids, 1)
	freqs = varbyte.Append(freqs, 2)
	freqs = varbyte.Append(freqs, 1)
	freqs = varbyte.Append(freqs, 1)
	docids = varbyte.Append(docids, 2)
	docids = varbyte.Append(docids, 2)
	docids = varbyte.Append(docids, 1)
	freqs = varbyte.Append(freqs, 3) // corrupt: disagrees with docids L=2
	freqs = varbyte.Append(freqs, 1)
	freqs = varbyte.Append(freqs, 1)
	freqs = varbyte.Append(freqs, 1)
	fmt.Fprintf(&lexicon, "bad\t4\t4\t%d\t%d\t2\n", badDocidsOff, badFreqsOff)

	writeTestFile(t, filepath.Join(dir, "postings.docids.bin"), docids)
	writeTestFile(t, filepath.Join(dir, "postings.freqs.bin"), freqs)
	writeTestFile(t, filepath.Join(dir, "lexicon.tsv"), []byte(lexicon.String()))
	writeTestFile(t, filepath.Join(dir, "stats.txt"), []byte("doc_count\t4\navgdl\t2\n"))

	lens := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(lens[i*4:], 2)
	}
	writeTestFile(t, filepath.Join(dir, "doc_len.bin"), lens)
	writeTestFile(t, filepath.Join(dir, "doc_table.txt"), []byte("0\tA\n1\tB\n2\tC\n3\tD\n"))
	return dir
}

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCursorBlockLengthMismatch(t *testing.T) {
	dir := writeCorruptIndex(t)
	r := openReader(t, dir)

	c, err := r.OpenCursor("bad")
	if err != nil {
		t.Fatal(err)
	}
	// First block is intact.
	if !c.Valid() || c.Doc() != 0 {
		t.Fatalf("first posting: valid=%v doc=%d", c.Valid(), c.Doc())
	}
	if !c.Next() || c.Doc() != 1 {
		t.Fatalf("second posting: doc=%d", c.Doc())
	}
	// Crossing into the corrupt block exhausts the cursor.
	if c.Next() {
		t.Fatal("Next into corrupt block should fail")
	}
	if c.Valid() {
		t.Error("cursor should be exhausted after corruption")
	}
	if c.Err() == nil {
		t.Error("cursor should report the corruption error")
	}

	// The clean term is unaffected.
	good, err := r.OpenCursor("good")
	if err != nil {
		t.Fatal(err)
	}
	var docs []uint32
	for good.Valid() {
		docs = append(docs, good.Doc())
		good.Next()
	}
	if fmt.Sprint(docs) != "[0 1]" {
		t.Errorf("good docs = %v, want [0 1]", docs)
	}
	if good.Err() != nil {
		t.Errorf("good cursor error: %v", good.Err())
	}
}

func TestOpenCursorUnknownTerm(t *testing.T) {
	dir := buildIndex(t, [][2]string{{"D0", "cat"}})
	r := openReader(t, dir)
	if _, err := r.OpenCursor("xyzzy"); err == nil {
		t.Fatal("OpenCursor for unknown term should fail")
	}
}

func TestOpenMissingFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir, filepath.Join(dir, "doc_table.txt")); err == nil {
		t.Fatal("Open on an empty directory should fail")
	}
}
