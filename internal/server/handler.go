// Package server exposes the query evaluator over HTTP: /search, /document,
// /stats, and health probes, with Prometheus request metrics recorded by
// middleware. The scrape endpoint itself is served by pkg/metrics.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuqi-zhai/passagerank/internal/index"
	"github.com/yuqi-zhai/passagerank/internal/querylog"
	"github.com/yuqi-zhai/passagerank/internal/search"
	apperrors "github.com/yuqi-zhai/passagerank/pkg/errors"
	"github.com/yuqi-zhai/passagerank/pkg/logger"
	"github.com/yuqi-zhai/passagerank/pkg/metrics"
)

// SearchResponse is the JSON body returned by /search.
type SearchResponse struct {
	QueryTerms  []string     `json:"query_terms"`
	Mode        string       `json:"mode"`
	QueryTimeMs int64        `json:"query_time_ms"`
	NumResults  int          `json:"num_results"`
	Results     []ResultItem `json:"results"`
}

// ResultItem is one ranked hit.
type ResultItem struct {
	Rank       int     `json:"rank"`
	DocID      uint32  `json:"doc_id"`
	Score      float64 `json:"score"`
	ExternalID string  `json:"external_id"`
	Snippet    string  `json:"snippet,omitempty"`
}

// DocumentResponse is the JSON body returned by /document/{id}.
type DocumentResponse struct {
	DocID      uint32 `json:"doc_id"`
	ExternalID string `json:"external_id"`
	Length     uint32 `json:"length"`
	Content    string `json:"content"`
}

// Handler serves search requests against a shared evaluator and reader.
type Handler struct {
	evaluator *search.Evaluator
	reader    *index.Reader
	cache     *search.QueryCache
	queryLog  *querylog.Store
	metrics   *metrics.Metrics

	defaultMode search.Mode
	defaultK    int
	maxK        int

	logger *slog.Logger
}

// New creates a Handler. cache, queryLog, and m may be nil.
func New(
	evaluator *search.Evaluator,
	reader *index.Reader,
	cache *search.QueryCache,
	queryLog *querylog.Store,
	m *metrics.Metrics,
	defaultMode search.Mode,
	defaultK, maxK int,
) *Handler {
	return &Handler{
		evaluator:   evaluator,
		reader:      reader,
		cache:       cache,
		queryLog:    queryLog,
		metrics:     m,
		defaultMode: defaultMode,
		defaultK:    defaultK,
		maxK:        maxK,
		logger:      logger.WithComponent("search-handler"),
	}
}

// Search handles GET /search?q=...&mode=and|or&k=N.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := logger.WithQueryID(r.Context(), newQueryID())
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput,
			http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}

	mode := h.defaultMode
	if modeStr := r.URL.Query().Get("mode"); modeStr != "" {
		mode = search.ParseMode(modeStr)
	}

	k := h.defaultK
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed < 1 {
			h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput,
				http.StatusBadRequest, "k must be a positive integer, got %q", kStr))
			return
		}
		if parsed > h.maxK {
			parsed = h.maxK
		}
		k = parsed
	}

	terms := search.QueryTerms(query)
	params := h.evaluator.Params()

	var results []search.Result
	var err error
	var cacheHit bool
	if h.cache != nil {
		results, cacheHit, err = h.cache.GetOrCompute(ctx, query, mode, k, params, func() ([]search.Result, error) {
			return h.evaluator.Evaluate(ctx, query, mode, k)
		})
		if h.metrics != nil {
			if cacheHit {
				h.metrics.CacheHitsTotal.Inc()
			} else {
				h.metrics.CacheMissesTotal.Inc()
			}
		}
	} else {
		results, err = h.evaluator.Evaluate(ctx, query, mode, k)
	}
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrInternal,
			http.StatusInternalServerError, "search failed"))
		return
	}

	elapsed := time.Since(start)
	h.recordMetrics(mode, len(results), elapsed)

	if h.queryLog != nil {
		h.queryLog.RecordAsync(querylog.Entry{
			Query:      query,
			Mode:       mode.String(),
			TopK:       k,
			NumResults: len(results),
			Latency:    elapsed,
			ExecutedAt: start,
		})
	}

	resp := SearchResponse{
		QueryTerms:  terms,
		Mode:        mode.String(),
		QueryTimeMs: elapsed.Milliseconds(),
		NumResults:  len(results),
		Results:     make([]ResultItem, 0, len(results)),
	}
	for i, res := range results {
		item := ResultItem{
			Rank:       i + 1,
			DocID:      res.DocID,
			Score:      res.Score,
			ExternalID: h.reader.Docs.ExternalID(res.DocID),
		}
		if h.reader.Content != nil {
			if content, err := h.reader.Content.Fetch(res.DocID); err == nil {
				item.Snippet = search.Snippet(content, terms)
			} else {
				log.Error("content fetch failed", "doc_id", res.DocID, "error", err)
			}
		}
		resp.Results = append(resp.Results, item)
	}

	log.Info("search completed",
		"query", query,
		"mode", mode.String(),
		"k", k,
		"results", len(results),
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// Document handles GET /document/{docID} and returns the stored content.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/document/")
	docID, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput,
			http.StatusBadRequest, "document ID must be a non-negative integer, got %q", idStr))
		return
	}
	if h.reader.Content == nil {
		h.writeError(w, apperrors.New(apperrors.ErrDocNotFound,
			http.StatusNotFound, "content store not loaded"))
		return
	}
	content, err := h.reader.Content.Fetch(uint32(docID))
	if err != nil {
		// Fetch wraps ErrDocNotFound for unknown IDs; read failures fall
		// through to 500 via the sentinel mapping.
		h.logger.Error("content fetch failed", "doc_id", docID, "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DocumentResponse{
		DocID:      uint32(docID),
		ExternalID: h.reader.Docs.ExternalID(uint32(docID)),
		Length:     uint32(len(content)),
		Content:    string(content),
	})
}

// Stats handles GET /stats with collection statistics, cache counters, and
// the most frequent recent queries when the query log is enabled.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	params := h.evaluator.Params()
	stats := map[string]any{
		"doc_count":      h.reader.Stats.DocCount,
		"avgdl":          h.reader.Stats.AvgDocLength,
		"total_terms":    h.reader.Stats.TotalTerms,
		"total_postings": h.reader.Stats.TotalPostings,
		"lexicon_terms":  h.reader.Lexicon.Len(),
		"k1":             params.K1,
		"b":              params.B,
	}
	if h.cache != nil {
		hits, misses := h.cache.HitRate()
		stats["cache_hits"] = hits
		stats["cache_misses"] = misses
	}
	if h.queryLog != nil {
		top, err := h.queryLog.TopQueries(r.Context(), 24*time.Hour, 10)
		if err != nil {
			h.logger.Error("loading top queries failed", "error", err)
		} else if len(top) > 0 {
			stats["top_queries"] = top
		}
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) recordMetrics(mode search.Mode, numResults int, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	resultType := "hit"
	if numResults == 0 {
		resultType = "zero_result"
	}
	h.metrics.QueriesTotal.WithLabelValues(mode.String(), resultType).Inc()
	h.metrics.QueryLatency.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
	h.metrics.QueryResultsCount.Observe(float64(numResults))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("writing response failed", "error", err)
	}
}

// writeError maps err to an HTTP status through the sentinel table and
// responds with the AppError message when one is present.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": message})
}

// newQueryID mints a short random identifier carried through the request
// context for log correlation.
func newQueryID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
