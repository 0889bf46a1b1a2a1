package search

import "container/heap"

// Result is one ranked document.
type Result struct {
	DocID uint32  `json:"doc_id"`
	Score float64 `json:"score"`
}

// topK keeps the K highest-scoring results seen so far in a min-heap.
// Eviction requires a strictly greater score, so under monotone docID
// traversal the earlier (smaller) docID survives a tie.
type topK struct {
	h resultHeap
	k int
}

func newTopK(k int) *topK {
	return &topK{h: make(resultHeap, 0, k), k: k}
}

func (t *topK) offer(r Result) {
	if t.h.Len() < t.k {
		heap.Push(&t.h, r)
		return
	}
	if r.Score > t.h[0].Score {
		heap.Pop(&t.h)
		heap.Push(&t.h, r)
	}
}

// results drains the heap into a slice ordered by descending score, ties by
// ascending docID.
func (t *topK) results() []Result {
	out := make([]Result, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(Result)
	}
	return out
}

type resultHeap []Result

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(Result))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
