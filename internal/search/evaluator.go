package search

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/yuqi-zhai/passagerank/internal/bm25"
	"github.com/yuqi-zhai/passagerank/internal/index"
	"github.com/yuqi-zhai/passagerank/pkg/metrics"
)

// Evaluator runs document-at-a-time top-K retrieval against a shared index
// reader. Each Evaluate call opens its own cursors, so concurrent queries
// only share the immutable loaded state. BM25 parameters may be
// reconfigured between queries; each query snapshots them for its full
// duration.
type Evaluator struct {
	reader *index.Reader

	mu     sync.Mutex
	params bm25.Params

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEvaluator creates an Evaluator with the given initial BM25 parameters.
func NewEvaluator(reader *index.Reader, params bm25.Params) *Evaluator {
	return &Evaluator{
		reader: reader,
		params: params,
		logger: slog.Default().With("component", "evaluator"),
	}
}

// SetMetrics attaches Prometheus collectors. Optional; nil disables
// instrumentation.
func (e *Evaluator) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SetParams replaces the BM25 parameters used by subsequent queries.
func (e *Evaluator) SetParams(k1, b float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = bm25.Params{K1: k1, B: b}
}

// Params returns the current BM25 parameters.
func (e *Evaluator) Params() bm25.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Evaluate tokenizes query, resolves the surviving terms to posting-list
// cursors, and returns the top k documents under the given mode, ordered by
// descending score. Terms absent from the lexicon are silently dropped; a
// query with no surviving terms returns an empty result.
func (e *Evaluator) Evaluate(ctx context.Context, query string, mode Mode, k int) ([]Result, error) {
	if k < 1 {
		k = 1
	}
	terms := QueryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	cursors := make([]*index.Cursor, 0, len(terms))
	idfs := make([]float64, 0, len(terms))
	params := e.Params()

	for _, term := range terms {
		meta, ok := e.reader.Lexicon.Find(term)
		if !ok {
			e.logger.Debug("query term not in lexicon", "term", term)
			if e.metrics != nil {
				e.metrics.QueryTermsDropped.Inc()
			}
			continue
		}
		cursor, err := e.reader.OpenCursor(term)
		if err != nil {
			e.logger.Error("opening cursor failed, skipping term", "term", term, "error", err)
			if e.metrics != nil {
				e.metrics.CursorCorruptions.Inc()
			}
			continue
		}
		if !cursor.Valid() {
			continue
		}
		cursors = append(cursors, cursor)
		idfs = append(idfs, bm25.IDF(e.reader.Stats.DocCount, meta.DF))
	}
	if len(cursors) == 0 {
		return nil, nil
	}

	heap := newTopK(k)
	if mode == ModeAND {
		e.evaluateAND(cursors, idfs, params, heap)
	} else {
		e.evaluateOR(cursors, idfs, params, heap)
	}

	for _, cursor := range cursors {
		if err := cursor.Err(); err != nil {
			e.logger.Error("cursor exhausted early", "error", err)
			if e.metrics != nil {
				e.metrics.CursorCorruptions.Inc()
			}
		}
	}
	return heap.results(), nil
}

// evaluateOR scores every document that appears in at least one posting
// list, advancing all cursors positioned on the minimum docID together.
func (e *Evaluator) evaluateOR(cursors []*index.Cursor, idfs []float64, params bm25.Params, heap *topK) {
	avgdl := e.reader.Stats.AvgDocLength
	for {
		minDoc := uint32(math.MaxUint32)
		alive := false
		for _, c := range cursors {
			if c.Valid() && c.Doc() < minDoc {
				minDoc = c.Doc()
				alive = true
			}
		}
		if !alive {
			return
		}

		score := 0.0
		dl := e.reader.DocLengths.Length(minDoc)
		for i, c := range cursors {
			if c.Valid() && c.Doc() == minDoc {
				score += bm25.Score(idfs[i], c.Freq(), dl, avgdl, params)
				c.Next()
			}
		}
		heap.offer(Result{DocID: minDoc, Score: score})
	}
}

// evaluateAND scores only documents present in every posting list. When a
// candidate fails, every cursor advances past it so the loop always makes
// forward progress.
func (e *Evaluator) evaluateAND(cursors []*index.Cursor, idfs []float64, params bm25.Params, heap *topK) {
	avgdl := e.reader.Stats.AvgDocLength
	for {
		maxDoc := uint32(0)
		for _, c := range cursors {
			if !c.Valid() {
				return
			}
			if c.Doc() > maxDoc {
				maxDoc = c.Doc()
			}
		}

		allMatch := true
		for _, c := range cursors {
			if c.Doc() < maxDoc {
				if !c.NextGEQ(maxDoc) {
					return
				}
			}
			if c.Doc() != maxDoc {
				allMatch = false
				break
			}
		}
		if !allMatch {
			for _, c := range cursors {
				if !c.NextGEQ(maxDoc + 1) {
					return
				}
			}
			continue
		}

		score := 0.0
		dl := e.reader.DocLengths.Length(maxDoc)
		for i, c := range cursors {
			score += bm25.Score(idfs[i], c.Freq(), dl, avgdl, params)
		}
		heap.offer(Result{DocID: maxDoc, Score: score})

		for _, c := range cursors {
			c.Next()
		}
	}
}
