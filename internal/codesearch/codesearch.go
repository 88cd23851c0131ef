// Package codesearch is the entry point used by the command-line tools. It
// ties index building, searching, export and the optional catalog together.
package codesearch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/export"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/result"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/logger"
)

// Events receives build notifications. Either field may be nil.
// FileIndexed can be called from several goroutines at once.
type Events struct {
	FileIndexed func(fileName string)
	Completed   func(fileCount int64, elapsed time.Duration)
}

type Option func(*Engine)

// WithIndexerOptions appends options applied to every writer.
func WithIndexerOptions(opts ...indexer.Option) Option {
	return func(e *Engine) { e.writerOpts = append(e.writerOpts, opts...) }
}

// WithSearcherOptions appends options applied to every searcher.
func WithSearcherOptions(opts ...searcher.Option) Option {
	return func(e *Engine) { e.searchOpts = append(e.searchOpts, opts...) }
}

// Invalidator drops cached results of one index generation;
// *cache.QueryCache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, indexID string) error
}

// WithCache serves searches through c and clears its entries when a named
// index is dropped.
func WithCache(c interface {
	searcher.Cache
	Invalidator
}) Option {
	return func(e *Engine) {
		e.searchOpts = append(e.searchOpts, searcher.WithCache(c))
		e.cache = c
	}
}

// WithCatalog enables named indexes.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

type Engine struct {
	cfg        *config.Config
	writerOpts []indexer.Option
	searchOpts []searcher.Option
	catalog    *catalog.Catalog
	cache      Invalidator
	logger     *slog.Logger
}

func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{cfg: cfg, logger: logger.WithComponent("codesearch")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateIndex starts building an index of sourcePath into indexPath in the
// background. Setup failures, such as a locked index directory, are reported
// by the returned task. The writer is closed when the task finishes.
func (e *Engine) CreateIndex(ctx context.Context, sourcePath, indexPath string, extensions []string, ev Events) *indexer.Task {
	opts := append([]indexer.Option{indexer.WithWalker(e.cfg.Walker)}, e.writerOpts...)
	if ev.FileIndexed != nil {
		opts = append(opts, indexer.WithProgress(ev.FileIndexed))
	}
	if ev.Completed != nil {
		opts = append(opts, indexer.WithCompletion(ev.Completed))
	}
	w, err := indexer.NewWriter(e.cfg.Indexer, indexPath, sourcePath, extensions, opts...)
	if err != nil {
		return indexer.Failed(err)
	}
	e.logger.Info("index build started", "source", sourcePath, "index", w.IndexPath(), "extensions", extensions)
	return w.Start(ctx, true)
}

// Search opens the index, runs one query and closes it again. Exact queries
// match a whole token; wildcard queries accept '?' and '*'.
func (e *Engine) Search(ctx context.Context, indexPath, pattern string, maxHits int, wildcard bool) (*result.Container, error) {
	indexPath, err := e.Resolve(ctx, indexPath)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithIndex(ctx, indexPath)
	logger.FromContext(ctx).Debug("search", "pattern", pattern, "max_hits", maxHits, "wildcard", wildcard)
	if wildcard {
		s, err := searcher.OpenWildcard(indexPath, e.searchOpts...)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.SearchFileContent(ctx, pattern, maxHits)
	}
	s, err := searcher.Open(indexPath, e.searchOpts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.SearchFileContent(ctx, pattern, maxHits)
}

// Export reads every hit of a search back from disk and locates the pattern
// in it.
func (e *Engine) Export(ctx context.Context, c *result.Container, pattern string, wildcard bool, opts ...export.Option) ([]export.DetailedResult, error) {
	opts = append([]export.Option{export.WithWorkers(e.cfg.Walker.Workers)}, opts...)
	return export.Export(ctx, c, pattern, wildcard, opts...)
}

// Register records a finished build under name. It is a no-op without a
// catalog.
func (e *Engine) Register(ctx context.Context, name, sourcePath, indexPath string, extensions []string, stats indexer.Stats) error {
	if e.catalog == nil || name == "" {
		return nil
	}
	return e.catalog.Register(ctx, catalog.Entry{
		Name:       name,
		Source:     sourcePath,
		IndexPath:  indexPath,
		Extensions: extensions,
		FileCount:  stats.Files,
		IndexID:    stats.IndexID,
	})
}

// Drop removes a named index from the catalog together with its files and
// any cached results.
func (e *Engine) Drop(ctx context.Context, name string) error {
	if e.catalog == nil {
		return apperrors.New(apperrors.ErrInvalidOperation, "codesearch.Drop", "no catalog configured")
	}
	entry, err := e.catalog.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := e.catalog.Delete(ctx, name, true); err != nil {
		return err
	}
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, entry.IndexID); err != nil {
			e.logger.Warn("cache invalidation failed", "index", name, "error", err)
		}
	}
	return nil
}

// Resolve maps a catalog name to its index directory. Anything that is not a
// known name is returned unchanged and treated as a path.
func (e *Engine) Resolve(ctx context.Context, nameOrPath string) (string, error) {
	if e.catalog == nil || nameOrPath == "" {
		return nameOrPath, nil
	}
	entry, err := e.catalog.Get(ctx, nameOrPath)
	switch {
	case err == nil:
		return entry.IndexPath, nil
	case errors.Is(err, apperrors.ErrIndexNotFound), errors.Is(err, apperrors.ErrInvalidArgument):
		return nameOrPath, nil
	default:
		return "", err
	}
}

// Catalog returns the configured catalog, or nil.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}
