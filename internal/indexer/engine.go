// Package indexer builds a searchable index from a source tree. A Writer
// owns the index directory exclusively for its lifetime: it walks the tree,
// buffers postings in memory, flushes them to segments as the buffer fills
// and finally consolidates everything into one committed segment.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/filetree"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/tracing"
)

// Stats describes a finished build.
type Stats struct {
	IndexID    string
	Files      int64
	Failed     int64
	FailedDirs int64
	Flushes    int
	Elapsed    time.Duration
}

type Option func(*Writer)

// WithProgress registers a callback fired once for every document added.
// It may be called from several goroutines at once.
func WithProgress(fn func(path string)) Option {
	return func(w *Writer) { w.onFile = fn }
}

// WithCompletion registers a callback fired once after a successful commit.
func WithCompletion(fn func(fileCount int64, elapsed time.Duration)) Option {
	return func(w *Writer) { w.onComplete = fn }
}

func WithPublisher(p progress.Publisher) Option {
	return func(w *Writer) { w.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

func WithWalker(cfg config.WalkerConfig, opts ...filetree.Option) Option {
	return func(w *Writer) {
		w.walkerCfg = cfg
		w.walkOpts = append(w.walkOpts, opts...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

type state int

const (
	stateReady state = iota
	stateBuilding
	stateCommitted
	stateFailed
	stateClosed
)

// Writer builds one index. It is single-use: CreateIndex may run once.
type Writer struct {
	cfg        config.IndexerConfig
	walkerCfg  config.WalkerConfig
	walkOpts   []filetree.Option
	indexPath  string
	sourcePath string
	extensions []string

	dir  *store.Directory
	segw *segment.Writer

	memMu sync.RWMutex
	mem   *index.MemoryIndex

	flushMu  sync.Mutex
	segments []string
	flushErr error

	nextID atomic.Uint32
	files  atomic.Int64
	failed atomic.Int64

	mu    sync.Mutex
	state state

	buildID    string
	onFile     func(string)
	onComplete func(int64, time.Duration)
	publisher  progress.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewWriter validates its inputs, takes the index directory's write lock and
// clears whatever an earlier build left there.
func NewWriter(cfg config.IndexerConfig, indexPath, sourcePath string, extensions []string, opts ...Option) (*Writer, error) {
	const op = "indexer.NewWriter"
	switch {
	case indexPath == "":
		return nil, apperrors.New(apperrors.ErrInvalidArgument, op, "index path is empty")
	case sourcePath == "":
		return nil, apperrors.New(apperrors.ErrInvalidArgument, op, "source path is empty")
	case len(extensions) == 0:
		return nil, apperrors.New(apperrors.ErrInvalidArgument, op, "no extensions given")
	}
	for _, ext := range extensions {
		if ext == "" {
			return nil, apperrors.New(apperrors.ErrInvalidArgument, op, "empty extension")
		}
	}
	src, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("resolving source path: %w", err)
	}
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrDirectoryNotFound, op, "%s", sourcePath)
	}

	if within(src, indexPath) {
		return nil, apperrors.Newf(apperrors.ErrInvalidArgument, op, "source %s lies inside index directory %s", sourcePath, indexPath)
	}

	dir, err := store.OpenWriter(indexPath)
	if err != nil {
		return nil, err
	}
	if err := dir.Clear(); err != nil {
		dir.Release()
		return nil, err
	}

	w := &Writer{
		cfg:        cfg,
		walkerCfg:  config.Default().Walker,
		indexPath:  dir.Path(),
		sourcePath: src,
		extensions: append([]string(nil), extensions...),
		dir:        dir,
		segw:       segment.NewWriter(dir.Path()),
		mem:        index.NewMemoryIndex(),
		buildID:    uuid.NewString(),
		logger:     slog.Default().With("component", "indexer", "index", dir.Path()),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cfg.SegmentMaxSize <= 0 {
		w.cfg.SegmentMaxSize = config.Default().Indexer.SegmentMaxSize
	}
	return w, nil
}

// within reports whether path is dir or lies below it, after resolving
// symlinks on both sides where they exist.
func within(path, dir string) bool {
	resolve := func(p string) string {
		abs, err := filepath.Abs(p)
		if err != nil {
			return filepath.Clean(p)
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			return real
		}
		return abs
	}
	rel, err := filepath.Rel(resolve(dir), resolve(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// IndexPath returns the absolute index directory.
func (w *Writer) IndexPath() string {
	return w.indexPath
}

// CreateIndex walks the source tree and commits the index. On error or
// cancellation nothing is committed and the directory stays unsearchable.
func (w *Writer) CreateIndex(ctx context.Context) (Stats, error) {
	if err := w.transition(stateReady, stateBuilding); err != nil {
		return Stats{}, err
	}
	start := time.Now()
	ctx, span := tracing.Start(ctx, "create-index")
	span.Set("source", w.sourcePath)
	defer func() {
		span.End()
		span.Log(w.logger)
	}()

	w.logger.Info("index build started",
		"source", w.sourcePath,
		"extensions", w.extensions,
		"build_id", w.buildID,
	)

	walkCtx, walkSpan := tracing.Start(ctx, "walk")
	opts := append([]filetree.Option{
		filetree.WithExclude(w.indexPath),
		filetree.WithLogger(w.logger.With("component", "filetree")),
	}, w.walkOpts...)
	walkStats, err := filetree.New(w.walkerCfg, opts...).ReadFiles(walkCtx, w.sourcePath, w.extensions, w.addBatch)
	walkSpan.Set("files", walkStats.Files)
	walkSpan.End()
	if err == nil {
		err = w.firstFlushError()
	}
	if err != nil {
		w.fail()
		return Stats{}, fmt.Errorf("building index: %w", err)
	}

	_, commitSpan := tracing.Start(ctx, "consolidate")
	manifest, err := w.consolidate()
	commitSpan.End()
	if err != nil {
		w.fail()
		return Stats{}, err
	}
	w.mu.Lock()
	w.state = stateCommitted
	w.mu.Unlock()

	elapsed := time.Since(start)
	stats := Stats{
		IndexID:    manifest.ID,
		Files:      w.files.Load(),
		Failed:     w.failed.Load(),
		FailedDirs: walkStats.FailedDirs,
		Flushes:    len(w.segments),
		Elapsed:    elapsed,
	}
	w.metrics.BuildFinished(elapsed.Seconds())
	if w.onComplete != nil {
		w.onComplete(stats.Files, elapsed)
	}
	w.publish(progress.Event{Type: progress.TypeCompleted, FileCount: stats.Files, ElapsedMS: elapsed.Milliseconds()})
	w.logger.Info("index build completed",
		"id", stats.IndexID,
		"files", stats.Files,
		"failed", stats.Failed,
		"elapsed", elapsed,
	)
	return stats, nil
}

func (w *Writer) addBatch(b filetree.Batch) {
	for _, f := range b.Failed {
		w.logger.Warn("skipping unreadable file", "path", f.Path, "error", f.Err)
	}
	if n := len(b.Failed); n > 0 {
		w.failed.Add(int64(n))
		w.metrics.FileFailed(n)
	}
	for _, f := range b.Files {
		id := index.DocID(w.nextID.Add(1) - 1)
		terms := normalizedTerms(f.Content)

		w.memMu.RLock()
		w.mem.AddDocument(id, strings.ToLower(f.Path), f.Path, terms)
		size := w.mem.Size()
		w.memMu.RUnlock()

		w.files.Add(1)
		w.metrics.DocIndexed()
		if w.onFile != nil {
			w.onFile(f.Path)
		}
		w.publish(progress.Event{Type: progress.TypeFileIndexed, File: f.Path})

		if size >= w.cfg.SegmentMaxSize {
			w.flush()
		}
	}
}

func normalizedTerms(content string) []string {
	var terms []string
	for tok := range tokenizer.Tokenize(strings.NewReader(content)) {
		terms = append(terms, strings.ToLower(tok.Text))
	}
	return terms
}

// flush swaps in a fresh memory index and writes the old one out as a
// segment. Errors are kept and reported when the walk finishes.
func (w *Writer) flush() {
	w.memMu.Lock()
	full := w.mem
	w.mem = index.NewMemoryIndex()
	w.memMu.Unlock()

	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	if full.DocCount() == 0 || w.flushErr != nil {
		return
	}
	entries, docs := full.Snapshot()
	name, err := w.segw.Write(entries, docs)
	if err != nil {
		w.flushErr = err
		w.logger.Error("segment flush failed", "error", err)
		return
	}
	w.segments = append(w.segments, name)
	w.metrics.SegmentWritten("flush")
	w.logger.Debug("segment flushed", "segment", name, "docs", len(docs), "terms", len(entries))
}

func (w *Writer) firstFlushError() error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return w.flushErr
}

// consolidate flushes what is left in memory, merges every segment into one
// and commits the manifest naming it.
func (w *Writer) consolidate() (*store.Manifest, error) {
	w.flush()
	if err := w.firstFlushError(); err != nil {
		return nil, err
	}

	w.flushMu.Lock()
	flushed := append([]string(nil), w.segments...)
	w.flushMu.Unlock()

	final, err := w.mergeAll(flushed)
	if err != nil {
		return nil, err
	}
	r, err := segment.OpenReader(w.dir.SegmentPath(final))
	if err != nil {
		return nil, fmt.Errorf("%w: reopening consolidated segment: %v", apperrors.ErrIO, err)
	}
	defer r.Close()

	m := &store.Manifest{
		Segments:   []string{final},
		DocCount:   int64(r.DocCount()),
		TermCount:  int64(r.TermCount()),
		TotalLen:   r.TotalLength(),
		Source:     w.sourcePath,
		Extensions: w.extensions,
	}
	if err := w.dir.Commit(m); err != nil {
		return nil, err
	}

	var obsolete []string
	for _, name := range flushed {
		if name != final {
			obsolete = append(obsolete, name)
		}
	}
	w.dir.RemoveSegments(obsolete)
	return m, nil
}

func (w *Writer) mergeAll(names []string) (string, error) {
	switch len(names) {
	case 0:
		name, err := w.segw.Write(nil, nil)
		if err != nil {
			return "", fmt.Errorf("%w: writing empty segment: %v", apperrors.ErrIO, err)
		}
		return name, nil
	case 1:
		return names[0], nil
	}
	readers := make([]*segment.Reader, 0, len(names))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	for _, name := range names {
		r, err := segment.OpenReader(w.dir.SegmentPath(name))
		if err != nil {
			return "", fmt.Errorf("%w: opening segment %s for merge: %v", apperrors.ErrIO, name, err)
		}
		readers = append(readers, r)
	}
	merged, err := segment.Merge(w.segw, readers)
	if err != nil {
		return "", fmt.Errorf("%w: merging segments: %v", apperrors.ErrIO, err)
	}
	w.metrics.SegmentWritten("merge")
	w.logger.Info("segments merged", "inputs", len(names), "segment", merged)
	return merged, nil
}

func (w *Writer) publish(e progress.Event) {
	if w.publisher == nil {
		return
	}
	e.BuildID = w.buildID
	e.IndexPath = w.indexPath
	w.publisher.Publish(e)
}

func (w *Writer) transition(from, to state) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		if w.state == stateClosed {
			return apperrors.New(apperrors.ErrInvalidOperation, "indexer.CreateIndex", "writer is closed")
		}
		return apperrors.New(apperrors.ErrInvalidOperation, "indexer.CreateIndex", "index already built by this writer")
	}
	w.state = to
	return nil
}

func (w *Writer) fail() {
	w.mu.Lock()
	w.state = stateFailed
	w.mu.Unlock()
}

// Close releases the write lock. When the build did not commit, partial
// segment files are removed first. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	prev := w.state
	if prev == stateClosed {
		w.mu.Unlock()
		return nil
	}
	if prev == stateBuilding {
		w.mu.Unlock()
		return apperrors.New(apperrors.ErrInvalidOperation, "indexer.Close", "build still running")
	}
	w.state = stateClosed
	w.mu.Unlock()

	var clearErr error
	if prev != stateCommitted {
		clearErr = w.dir.Clear()
	}
	if err := w.dir.Release(); err != nil {
		return err
	}
	return clearErr
}
