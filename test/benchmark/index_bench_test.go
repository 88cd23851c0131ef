// Package benchmark contains Go benchmarks for the index writer, the memory
// index and the query pipeline, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
)

const sampleSource = `package search

func (s *Searcher) SearchFileContent(ctx context.Context, pattern string, maxHits int) (*Container, error) {
	return s.search(ctx, pattern, maxHits)
}
`

// BenchmarkMemoryIndexAdd measures per-document insert throughput into the
// in-memory inverted index.
func BenchmarkMemoryIndexAdd(b *testing.B) {
	mi := index.NewMemoryIndex()
	terms := tokenizer.Terms(sampleSource)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mi.AddDocument(index.DocID(i), fmt.Sprintf("/src/f%d.go", i), "", terms)
	}
}

// BenchmarkMemoryIndexSearch measures single-term lookup latency over 10 000
// documents.
func BenchmarkMemoryIndexSearch(b *testing.B) {
	mi := populated(10000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mi.Search("search")
	}
}

// BenchmarkMemoryIndexSearchParallel measures concurrent read throughput.
func BenchmarkMemoryIndexSearchParallel(b *testing.B) {
	mi := populated(10000)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = mi.Search("search")
		}
	})
}

// BenchmarkCreateIndex measures a full build: walk, tokenize, flush and
// commit, over trees of increasing size.
func BenchmarkCreateIndex(b *testing.B) {
	for _, n := range []int{100, 1000} {
		b.Run(fmt.Sprintf("files_%d", n), func(b *testing.B) {
			src := sourceTree(b, n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				idx := filepath.Join(b.TempDir(), "index")
				w, err := indexer.NewWriter(config.IndexerConfig{}, idx, src, []string{".go"})
				if err != nil {
					b.Fatal(err)
				}
				if _, err := w.CreateIndex(context.Background()); err != nil {
					b.Fatal(err)
				}
				w.Close()
			}
		})
	}
}

func populated(n int) *index.MemoryIndex {
	mi := index.NewMemoryIndex()
	terms := tokenizer.Terms(sampleSource)
	for i := 0; i < n; i++ {
		mi.AddDocument(index.DocID(i), fmt.Sprintf("/src/f%d.go", i), "", terms)
	}
	return mi
}

func sourceTree(tb testing.TB, n int) string {
	tb.Helper()
	root := tb.TempDir()
	for i := 0; i < n; i++ {
		dir := filepath.Join(root, fmt.Sprintf("pkg%d", i%16), fmt.Sprintf("sub%d", i%5))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			tb.Fatal(err)
		}
		content := fmt.Sprintf("%s\n// unique%d\n", sampleSource, i)
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%d.go", i)), []byte(content), 0o644); err != nil {
			tb.Fatal(err)
		}
	}
	return root
}
