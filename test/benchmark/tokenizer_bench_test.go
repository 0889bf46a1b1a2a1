package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/yuqi-zhai/passagerank/internal/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Disk-resident inverted indexes keep posting lists in compressed
        blocks so that query evaluation touches only the bytes it needs. Gap
        encoding shrinks sorted docID sequences, and variable-byte coding keeps
        decode loops branch-light. BM25 ranking then combines term frequency
        saturation with document length normalization to order the candidates
        produced by document-at-a-time traversal.`,
	"long": strings.Repeat(`Passage retrieval collections such as MS MARCO hold tens of
        millions of short documents. A two-pass builder streams them once to emit
        flat postings, sorts the postings externally, and merges them into
        block-compressed posting lists with a lexicon of per-term offsets. At
        query time, cursors walk the lists in docID order while a bounded heap
        tracks the highest scoring candidates seen so far. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tokens := tokenizer.Tokenize(text)
			_ = tokens
		}
	})
}

func BenchmarkTermFrequencies(b *testing.B) {
	text := sampleTexts["long"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		freqs := tokenizer.TermFrequencies(text)
		_ = freqs
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "block compressed inverted index passage retrieval "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}
