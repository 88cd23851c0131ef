// Package result holds the ranked outcome of one search.
package result

import "iter"

// Result is one matching file. FileName is the lower-cased indexed path;
// Path is the file as found on disk and is what should be opened.
type Result struct {
	FileName string  `json:"file_name"`
	Path     string  `json:"path,omitempty"`
	Score    float32 `json:"score"`
}

// Resolver maps a document number to its indexed and on-disk paths.
type Resolver func(doc uint32) (fileName, path string)

// Hit is a ranked document before its file name is looked up.
type Hit struct {
	Doc   uint32
	Score float32
}

// Container is an ordered, immutable set of hits, best first. File names
// are resolved lazily while iterating.
type Container struct {
	hits    []Hit
	total   int
	resolve Resolver
}

// New wraps ranked hits. total is the number of matching documents before
// the hit limit was applied.
func New(hits []Hit, total int, resolve Resolver) *Container {
	if total < len(hits) {
		total = len(hits)
	}
	return &Container{hits: hits, total: total, resolve: resolve}
}

// FromResults rebuilds a container from already resolved results, as kept
// by the result cache.
func FromResults(results []Result, total int) *Container {
	hits := make([]Hit, len(results))
	kept := append([]Result(nil), results...)
	for i, r := range kept {
		hits[i] = Hit{Doc: uint32(i), Score: r.Score}
	}
	return New(hits, total, func(doc uint32) (string, string) {
		return kept[doc].FileName, kept[doc].Path
	})
}

func Empty() *Container {
	return New(nil, 0, nil)
}

// NumberOfHits is the number of results the container yields.
func (c *Container) NumberOfHits() int {
	return len(c.hits)
}

// TotalMatches is the number of matching documents, including those cut off
// by the hit limit.
func (c *Container) TotalMatches() int {
	return c.total
}

// All yields the results in rank order. It may be ranged over any number of
// times.
func (c *Container) All() iter.Seq[Result] {
	return func(yield func(Result) bool) {
		for _, h := range c.hits {
			name, path := c.resolve(h.Doc)
			if !yield(Result{FileName: name, Path: path, Score: h.Score}) {
				return
			}
		}
	}
}

func (c *Container) Results() []Result {
	out := make([]Result, 0, len(c.hits))
	for r := range c.All() {
		out = append(out, r)
	}
	return out
}
