// Package merger selects the best k scored documents.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/ranker"
)

// TopK returns the k best documents of docs in rank order using a bounded
// min-heap, so memory stays O(k) however many documents matched.
func TopK(docs []ranker.ScoredDoc, k int) []ranker.ScoredDoc {
	if k <= 0 {
		return nil
	}
	h := &scoredDocHeap{}
	for _, doc := range docs {
		if h.Len() < k {
			heap.Push(h, doc)
			continue
		}
		if ranker.Better(doc, (*h)[0]) {
			(*h)[0] = doc
			heap.Fix(h, 0)
		}
	}
	out := make([]ranker.ScoredDoc, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return out
}

// scoredDocHeap keeps the worst document at the root.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return ranker.Better(h[j], h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
