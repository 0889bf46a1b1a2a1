package search

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/yuqi-zhai/passagerank/internal/bm25"
	"github.com/yuqi-zhai/passagerank/internal/builder"
	"github.com/yuqi-zhai/passagerank/internal/index"
	"github.com/yuqi-zhai/passagerank/internal/merger"
)

// buildIndex runs both pipeline phases over docs (externalID -> content),
// with an in-test sort standing in for the external one, and opens a reader.
func buildIndex(t *testing.T, docs [][2]string) *index.Reader {
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

	parts, err := filepath.Glob(filepath.Join(dir, "postings_part_*.tsv"))
	if err != nil {
		t.Fatal(err)
	}
	type row struct {
		term  string
		docID int
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
			var docID int
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
	sorted := filepath.Join(dir, "postings_sorted.tsv")
	if err := os.WriteFile(sorted, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := merger.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(context.Background(), sorted); err != nil {
		t.Fatal(err)
	}

	reader, err := index.Open(dir, filepath.Join(dir, "doc_table.txt"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reader.Close() })
	return reader
}

func evaluate(t *testing.T, reader *index.Reader, query string, mode Mode, k int) []Result {
	t.Helper()
	e := NewEvaluator(reader, bm25.DefaultParams())
	results, err := e.Evaluate(context.Background(), query, mode, k)
	if err != nil {
		t.Fatal(err)
	}
	return results
}

func docIDs(results []Result) []uint32 {
	ids := make([]uint32, len(results))
	for i, r := range results {
		ids[i] = r.DocID
	}
	return ids
}

func TestSingleTermOR(t *testing.T) {
	// D0="cat dog", D1="dog bird", D2="cat": "dog" hits D0 and D1, both of
	// length 2, so the scores tie and the smaller docID ranks first.
	reader := buildIndex(t, [][2]string{
		{"D0", "cat dog"},
		{"D1", "dog bird"},
		{"D2", "cat"},
	})
	results := evaluate(t, reader, "dog", ModeOR, 10)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Score != results[1].Score {
		t.Errorf("equal-length docs should tie: %g vs %g", results[0].Score, results[1].Score)
	}
	if results[0].DocID != 0 || results[1].DocID != 1 {
		t.Errorf("docIDs = %v, want [0 1]", docIDs(results))
	}

	// Hand-computed BM25: N=3, df=2, dl=2, avgdl=5/3.
	idf := math.Log((3-2+0.5)/(2+0.5) + 1)
	avgdl := 5.0 / 3.0
	want := idf * (1 * 1.9) / (1 + 0.9*(1-0.4+0.4*2/avgdl))
	if math.Abs(results[0].Score-want) > 1e-12 {
		t.Errorf("score = %.12f, want %.12f", results[0].Score, want)
	}
}

func TestMultiTermANDvsOR(t *testing.T) {
	reader := buildIndex(t, [][2]string{
		{"D0", "apple banana"},
		{"D1", "apple"},
		{"D2", "banana"},
	})

	and := evaluate(t, reader, "apple banana", ModeAND, 10)
	if len(and) != 1 || and[0].DocID != 0 {
		t.Fatalf("AND results = %v, want only doc 0", docIDs(and))
	}

	or := evaluate(t, reader, "apple banana", ModeOR, 10)
	if len(or) != 3 {
		t.Fatalf("OR returned %d results, want 3", len(or))
	}
	if or[0].DocID != 0 {
		t.Errorf("doc 0 should rank first in OR, got %v", docIDs(or))
	}
}

func TestUnknownTermDropped(t *testing.T) {
	reader := buildIndex(t, [][2]string{
		{"D0", "apple banana"},
		{"D1", "apple"},
		{"D2", "banana"},
	})
	withUnknown := evaluate(t, reader, "apple xyzzy", ModeOR, 10)
	alone := evaluate(t, reader, "apple", ModeOR, 10)
	if len(withUnknown) != len(alone) {
		t.Fatalf("got %d vs %d results", len(withUnknown), len(alone))
	}
	for i := range alone {
		if withUnknown[i] != alone[i] {
			t.Errorf("result %d differs: %+v vs %+v", i, withUnknown[i], alone[i])
		}
	}
}

func TestEmptyAndUnknownOnlyQueries(t *testing.T) {
	reader := buildIndex(t, [][2]string{{"D0", "apple"}})
	if results := evaluate(t, reader, "", ModeOR, 10); len(results) != 0 {
		t.Errorf("empty query returned %v", results)
	}
	if results := evaluate(t, reader, "...!!!", ModeOR, 10); len(results) != 0 {
		t.Errorf("separator-only query returned %v", results)
	}
	if results := evaluate(t, reader, "xyzzy plugh", ModeAND, 10); len(results) != 0 {
		t.Errorf("unknown-only query returned %v", results)
	}
}

func TestDuplicateQueryTermsCountOnce(t *testing.T) {
	reader := buildIndex(t, [][2]string{
		{"D0", "apple apple"},
		{"D1", "apple"},
	})
	once := evaluate(t, reader, "apple", ModeOR, 10)
	twice := evaluate(t, reader, "apple apple", ModeOR, 10)
	if len(once) != len(twice) {
		t.Fatalf("got %d vs %d results", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("result %d differs: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestDAATEquivalence(t *testing.T) {
	// OR scores the union of per-term docID sets, AND the intersection.
	reader := buildIndex(t, [][2]string{
		{"D0", "red green blue"},
		{"D1", "red"},
		{"D2", "green blue"},
		{"D3", "red blue"},
		{"D4", "yellow"},
	})

	or := evaluate(t, reader, "red blue", ModeOR, 100)
	union := map[uint32]bool{0: true, 1: true, 2: true, 3: true}
	if len(or) != len(union) {
		t.Fatalf("OR returned %v, want union of size %d", docIDs(or), len(union))
	}
	for _, r := range or {
		if !union[r.DocID] {
			t.Errorf("doc %d not in union", r.DocID)
		}
	}

	and := evaluate(t, reader, "red blue", ModeAND, 100)
	intersection := map[uint32]bool{0: true, 3: true}
	if len(and) != len(intersection) {
		t.Fatalf("AND returned %v, want intersection of size %d", docIDs(and), len(intersection))
	}
	for _, r := range and {
		if !intersection[r.DocID] {
			t.Errorf("doc %d not in intersection", r.DocID)
		}
	}
}

func TestTopKTruncationKeepsHighestScores(t *testing.T) {
	// Documents with increasing dilution: more filler lowers the score for
	// "target", so the least diluted documents must win.
	var docs [][2]string
	for i := 0; i < 20; i++ {
		content := "target " + strings.Repeat("filler ", i+1)
		docs = append(docs, [2]string{fmt.Sprintf("D%d", i), content})
	}
	reader := buildIndex(t, docs)

	all := evaluate(t, reader, "target", ModeOR, 100)
	if len(all) != 20 {
		t.Fatalf("full evaluation returned %d results", len(all))
	}
	top5 := evaluate(t, reader, "target", ModeOR, 5)
	if len(top5) != 5 {
		t.Fatalf("top-5 returned %d results", len(top5))
	}
	for i := range top5 {
		if top5[i] != all[i] {
			t.Errorf("top-5[%d] = %+v, full[%d] = %+v", i, top5[i], i, all[i])
		}
	}
	for i := 1; i < len(all); i++ {
		if all[i].Score > all[i-1].Score {
			t.Fatalf("results not sorted by descending score at %d", i)
		}
	}
}

func TestParamsUpdateAffectsNextQuery(t *testing.T) {
	reader := buildIndex(t, [][2]string{
		{"D0", "apple pie"},
		{"D1", "apple apple apple pie pie pie"},
	})
	e := NewEvaluator(reader, bm25.DefaultParams())

	before, err := e.Evaluate(context.Background(), "apple", ModeOR, 10)
	if err != nil {
		t.Fatal(err)
	}
	// k1=0 makes the tf factor a constant 1: every matching doc gets exactly
	// idf, so the two docs tie.
	e.SetParams(0, 0)
	after, err := e.Evaluate(context.Background(), "apple", ModeOR, 10)
	if err != nil {
		t.Fatal(err)
	}
	if p := e.Params(); p.K1 != 0 || p.B != 0 {
		t.Errorf("Params = %+v, want zeros", p)
	}
	if before[0].Score == after[0].Score {
		t.Error("parameter update should change scores")
	}
	if after[0].Score != after[1].Score {
		t.Errorf("with k1=0 scores should tie: %g vs %g", after[0].Score, after[1].Score)
	}
}

func TestRoundtripSmallCollection(t *testing.T) {
	// Five documents with a hand-computed posting structure.
	reader := buildIndex(t, [][2]string{
		{"A", "the cat sat"},
		{"B", "the dog sat"},
		{"C", "the cat ran"},
		{"D", "a bird flew"},
		{"E", "cat dog bird"},
	})

	expect := map[string]struct {
		df uint32
		cf uint64
	}{
		"the": {3, 3}, "cat": {3, 3}, "sat": {2, 2}, "dog": {2, 2},
		"ran": {1, 1}, "a": {1, 1}, "bird": {2, 2}, "flew": {1, 1},
	}
	if reader.Lexicon.Len() != len(expect) {
		t.Fatalf("lexicon has %d terms, want %d", reader.Lexicon.Len(), len(expect))
	}
	for term, want := range expect {
		meta, ok := reader.Lexicon.Find(term)
		if !ok {
			t.Errorf("term %q missing", term)
			continue
		}
		if meta.DF != want.df || meta.CF != want.cf {
			t.Errorf("%q: df=%d cf=%d, want df=%d cf=%d", term, meta.DF, meta.CF, want.df, want.cf)
		}
	}

	results := evaluate(t, reader, "cat", ModeOR, 10)
	if fmt.Sprint(docIDs(results)) != "[0 2 4]" {
		t.Errorf("cat docs = %v, want [0 2 4] (all length 3, ties by docID)", docIDs(results))
	}
}
