// Package index holds the in-memory inverted index that buffers postings
// between segment flushes.
package index

import (
	"sort"
	"sync"
)

type MemoryIndex struct {
	mu    sync.RWMutex
	index map[string]map[DocID]*Posting
	docs  map[DocID]StoredDoc
	size  int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]map[DocID]*Posting),
		docs:  make(map[DocID]StoredDoc),
	}
}

// AddDocument records one document. path and terms must already be
// normalised; source is the path as found on disk and may be empty. The
// slice index of a term is used as its token position.
func (m *MemoryIndex) AddDocument(id DocID, path, source string, terms []string) {
	termData := make(map[string]*Posting)
	for pos, term := range terms {
		p, exists := termData[term]
		if !exists {
			p = &Posting{
				DocID:     id,
				Positions: make([]int, 0, 4),
			}
			termData[term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, pos)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for term, posting := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[DocID]*Posting)
		}
		m.index[term][id] = posting
		m.size += int64(len(term) + len(posting.Positions)*8 + 48)
	}
	m.docs[id] = StoredDoc{ID: id, Path: path, Source: source, Length: len(terms)}
	m.size += int64(len(path) + len(source) + 32)
}

func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sortPostings(result)
	return result
}

// Snapshot returns all terms sorted lexically together with the stored docs
// sorted by ID.
func (m *MemoryIndex) Snapshot() ([]TermEntry, []StoredDoc) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sortPostings(postings)
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	docs := make([]StoredDoc, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return entries, docs
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[DocID]*Posting)
	m.docs = make(map[DocID]StoredDoc)
	m.size = 0
}

func sortPostings(pl PostingList) {
	sort.Slice(pl, func(i, j int) bool {
		return pl[i].DocID < pl[j].DocID
	})
}
