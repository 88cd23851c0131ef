// Package searcher answers term and wildcard queries against a committed
// index. Searchers are safe for concurrent use until Close.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/result"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/tracing"
)

const (
	ModeExact    = "exact"
	ModeWildcard = "wildcard"
)

// Cache is an optional result cache; *cache.QueryCache satisfies it.
type Cache interface {
	GetOrCompute(ctx context.Context, key string, compute func() (*result.Container, error)) (*result.Container, bool, error)
}

type options struct {
	cache   Cache
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*options)

func WithCache(c Cache) Option {
	return func(o *options) { o.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTimeout bounds every query. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// engine holds the opened segments shared by both query modes.
type engine struct {
	path      string
	manifest  *store.Manifest
	readers   []*segment.Reader
	totalDocs int64
	avgLen    float64
	opts      options
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	// inflight counts query goroutines, which can outlive a timed-out
	// search call. Close waits for them before closing the segments.
	inflight sync.WaitGroup
}

// postingsFunc returns the posting lists matched by a normalised pattern.
type postingsFunc func(ctx context.Context, pattern string) ([]index.PostingList, error)

func open(indexPath string, opts []Option) (*engine, error) {
	if indexPath == "" {
		return nil, apperrors.New(apperrors.ErrInvalidArgument, "searcher.Open", "index path is empty")
	}
	dir, manifest, err := store.OpenReader(indexPath)
	if err != nil {
		return nil, err
	}
	e := &engine{path: dir.Path(), manifest: manifest}
	for _, opt := range opts {
		opt(&e.opts)
	}
	e.logger = e.opts.logger
	if e.logger == nil {
		e.logger = slog.Default().With("component", "searcher", "index", dir.Path())
	}

	var totalLen int64
	for _, name := range manifest.Segments {
		r, err := segment.OpenReader(dir.SegmentPath(name))
		if err != nil {
			e.closeReaders()
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "searcher.Open", "segment %s: %v", name, err)
		}
		e.readers = append(e.readers, r)
		e.totalDocs += int64(r.DocCount())
		totalLen += r.TotalLength()
	}
	if e.totalDocs > 0 {
		e.avgLen = float64(totalLen) / float64(e.totalDocs)
	}
	e.logger.Debug("index opened",
		"id", manifest.ID,
		"segments", len(e.readers),
		"docs", e.totalDocs,
	)
	return e, nil
}

// IndexID identifies the committed generation this searcher reads.
func (e *engine) IndexID() string {
	return e.manifest.ID
}

func (e *engine) DocCount() int64 {
	return e.totalDocs
}

// Close waits for running queries, including ones whose search call already
// timed out, then releases the segment files. Later calls fail with
// ErrInvalidOperation.
func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.New(apperrors.ErrInvalidOperation, "searcher.Close", "searcher already closed")
	}
	e.closed = true
	e.mu.Unlock()
	e.inflight.Wait()
	e.mu.Lock()
	return e.closeReaders()
}

func (e *engine) closeReaders() error {
	var first error
	for _, r := range e.readers {
		if err := r.Close(); err != nil && first == nil {
			first = fmt.Errorf("%w: closing segment %s: %v", apperrors.ErrIO, r.Name(), err)
		}
	}
	return first
}

func (e *engine) search(ctx context.Context, mode, pattern string, maxHits int, lookup postingsFunc) (*result.Container, error) {
	const op = "searcher.SearchFileContent"
	if pattern == "" {
		return nil, apperrors.New(apperrors.ErrInvalidArgument, op, "pattern is empty")
	}
	if maxHits < 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidArgument, op, "maxHits must be at least 1, got %d", maxHits)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, apperrors.New(apperrors.ErrInvalidOperation, op, "searcher is closed")
	}

	start := time.Now()
	ctx, span := tracing.Start(ctx, "search")
	span.Set("mode", mode)
	span.Set("pattern", pattern)

	normalized := strings.ToLower(pattern)
	compute := func() (*result.Container, error) {
		e.inflight.Add(1)
		return resilience.WithTimeout(ctx, e.opts.timeout, "search", func(ctx context.Context) (*result.Container, error) {
			defer e.inflight.Done()
			return e.run(ctx, normalized, maxHits, lookup)
		})
	}

	var (
		res *result.Container
		hit bool
		err error
	)
	if e.opts.cache != nil {
		res, hit, err = e.opts.cache.GetOrCompute(ctx, cache.Key(e.manifest.ID, mode, normalized, maxHits), compute)
	} else {
		res, err = compute()
	}
	span.End()

	hits := 0
	if res != nil {
		hits = res.NumberOfHits()
	}
	e.opts.metrics.SearchFinished(mode, time.Since(start).Seconds(), hits, err)
	if err != nil {
		return nil, err
	}
	span.Set("hits", hits)
	span.Set("cached", hit)
	span.Log(e.logger)
	return res, nil
}

func (e *engine) run(ctx context.Context, pattern string, maxHits int, lookup postingsFunc) (*result.Container, error) {
	lists, err := lookup(ctx, pattern)
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return result.Empty(), nil
	}
	scored := ranker.Rank(lists, ranker.Params{TotalDocs: e.totalDocs, AvgDocLength: e.avgLen}, e.docLength)
	top := merger.TopK(scored, maxHits)
	hits := make([]result.Hit, len(top))
	for i, d := range top {
		hits[i] = result.Hit{Doc: uint32(d.Doc), Score: float32(d.Score)}
	}
	return result.New(hits, len(scored), e.resolve), nil
}

// termPostings collects the postings of one exact term across all segments.
func (e *engine) termPostings(ctx context.Context, term string) ([]index.PostingList, error) {
	var all index.PostingList
	for _, r := range e.readers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pl, err := r.Search(term)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrIO, err)
		}
		all = append(all, pl...)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return []index.PostingList{all}, nil
}

func (e *engine) doc(id index.DocID) (index.StoredDoc, bool) {
	for _, r := range e.readers {
		if d, ok := r.Doc(id); ok {
			return d, true
		}
	}
	return index.StoredDoc{}, false
}

func (e *engine) docLength(id index.DocID) int {
	d, _ := e.doc(id)
	return d.Length
}

func (e *engine) resolve(doc uint32) (string, string) {
	d, _ := e.doc(index.DocID(doc))
	return d.Path, d.SourcePath()
}

// Searcher runs exact single-term queries.
type Searcher struct {
	*engine
}

// Open opens the committed index at indexPath for exact-term search.
func Open(indexPath string, opts ...Option) (*Searcher, error) {
	e, err := open(indexPath, opts)
	if err != nil {
		return nil, err
	}
	return &Searcher{engine: e}, nil
}

// SearchFileContent returns up to maxHits files containing the token
// pattern, best BM25 score first. The pattern is lower-cased and not split.
func (s *Searcher) SearchFileContent(ctx context.Context, pattern string, maxHits int) (*result.Container, error) {
	return s.search(ctx, ModeExact, pattern, maxHits, s.termPostings)
}
