package segment

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
)

// Merge consolidates the given segments into a single new segment and
// returns its name. Doc IDs are assumed unique across the inputs; postings
// for the same term are concatenated and re-sorted by doc ID. The inputs are
// left untouched; the caller removes them once the result is committed.
func Merge(w *Writer, readers []*Reader) (string, error) {
	b, err := w.Create()
	if err != nil {
		return "", err
	}
	h := &cursorHeap{}
	for i, r := range readers {
		if len(r.dict) > 0 {
			heap.Push(h, cursor{reader: i, pos: 0, term: r.dict[0].Term})
		}
	}
	for h.Len() > 0 {
		term := (*h)[0].term
		var merged index.PostingList
		for h.Len() > 0 && (*h)[0].term == term {
			c := heap.Pop(h).(cursor)
			r := readers[c.reader]
			postings, err := r.postings(r.dict[c.pos])
			if err != nil {
				b.Abort()
				return "", fmt.Errorf("merging %s: %w", r.Name(), err)
			}
			merged = append(merged, postings...)
			if next := c.pos + 1; next < len(r.dict) {
				heap.Push(h, cursor{reader: c.reader, pos: next, term: r.dict[next].Term})
			}
		}
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].DocID < merged[j].DocID
		})
		if err := b.Add(term, merged); err != nil {
			b.Abort()
			return "", err
		}
	}

	var docs []index.StoredDoc
	for _, r := range readers {
		docs = append(docs, r.docs...)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return b.Finish(docs)
}

type cursor struct {
	reader int
	pos    int
	term   string
}

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if h[i].term != h[j].term {
		return h[i].term < h[j].term
	}
	return h[i].reader < h[j].reader
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x interface{}) {
	*h = append(*h, x.(cursor))
}

func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
