// Package filetree discovers files under a root directory, reads them as
// text and delivers them per directory to a batch callback. Subdirectories
// are explored by a bounded pool of goroutines; one unreadable file or
// directory never aborts the walk.
package filetree

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
)

// File is one discovered file. Content is only set when ErrorOccurred is
// false.
type File struct {
	Path          string
	Content       string
	Size          int64
	ErrorOccurred bool
	Err           error
}

// Batch carries the matching files owned by one directory.
type Batch struct {
	Dir    string
	Files  []File
	Failed []File
}

// Stats summarises a finished walk.
type Stats struct {
	Dirs       int64
	Files      int64
	Failed     int64
	FailedDirs int64
}

// Opener opens a file for reading. It exists so tests can simulate locked
// or vanishing files.
type Opener func(path string) (io.ReadCloser, error)

type Option func(*Reader)

func WithOpener(open Opener) Option {
	return func(r *Reader) { r.open = open }
}

// WithExclude keeps the given directories (and everything below them) out of
// the walk.
func WithExclude(dirs ...string) Option {
	return func(r *Reader) {
		for _, d := range dirs {
			if d == "" {
				continue
			}
			r.exclude[canonical(d)] = struct{}{}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) { r.logger = logger }
}

type Reader struct {
	cfg     config.WalkerConfig
	open    Opener
	exclude map[string]struct{}
	logger  *slog.Logger
}

func New(cfg config.WalkerConfig, opts ...Option) *Reader {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 64
	}
	r := &Reader{
		cfg:     cfg,
		open:    func(path string) (io.ReadCloser, error) { return os.Open(path) },
		exclude: make(map[string]struct{}),
		logger:  slog.Default().With("component", "filetree"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type walk struct {
	r       *Reader
	ctx     context.Context
	group   *errgroup.Group
	exts    map[string]struct{}
	onBatch func(Batch)
	visited sync.Map
	stats   struct{ dirs, files, failed, failedDirs atomic.Int64 }
}

// ReadFiles walks root and calls onBatch once per directory that owns at
// least one matching file. onBatch may be called concurrently from several
// goroutines. ReadFiles returns after every batch has been delivered.
func (r *Reader) ReadFiles(ctx context.Context, root string, extensions []string, onBatch func(Batch)) (Stats, error) {
	if root == "" {
		return Stats{}, apperrors.New(apperrors.ErrInvalidArgument, "filetree.ReadFiles", "root is empty")
	}
	if len(extensions) == 0 {
		return Stats{}, apperrors.New(apperrors.ErrInvalidArgument, "filetree.ReadFiles", "no extensions given")
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return Stats{}, apperrors.Newf(apperrors.ErrDirectoryNotFound, "filetree.ReadFiles", "%s", root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Stats{}, fmt.Errorf("resolving root: %w", err)
	}

	if _, skip := r.exclude[canonical(abs)]; skip {
		return Stats{}, apperrors.Newf(apperrors.ErrInvalidArgument, "filetree.ReadFiles", "root %s is excluded", root)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	w := &walk{
		r:       r,
		ctx:     gctx,
		group:   g,
		exts:    make(map[string]struct{}, len(extensions)),
		onBatch: onBatch,
	}
	for _, ext := range extensions {
		w.exts[ext] = struct{}{}
	}
	w.visited.Store(canonical(abs), struct{}{})

	g.Go(func() error { return w.dir(abs, 0) })
	err = g.Wait()

	stats := Stats{
		Dirs:       w.stats.dirs.Load(),
		Files:      w.stats.files.Load(),
		Failed:     w.stats.failed.Load(),
		FailedDirs: w.stats.failedDirs.Load(),
	}
	r.logger.Debug("walk finished",
		"root", abs,
		"dirs", stats.Dirs,
		"files", stats.Files,
		"failed", stats.Failed,
		"failed_dirs", stats.FailedDirs,
	)
	if err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

// dir processes one directory: its own files first, then its children.
// Children at shallow depth are offered to the worker pool; when the pool is
// saturated, or below ParallelDepth, they are walked inline.
func (w *walk) dir(path string, depth int) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		w.stats.failedDirs.Add(1)
		w.r.logger.Warn("skipping unreadable directory", "dir", path, "error", err)
		return nil
	}
	w.stats.dirs.Add(1)

	var (
		batch   = Batch{Dir: path}
		subdirs []string
	)
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		isDir := e.IsDir()
		if e.Type()&os.ModeSymlink != 0 {
			target, err := os.Stat(full)
			if err != nil {
				if _, ok := w.exts[filepath.Ext(e.Name())]; ok {
					batch.Failed = append(batch.Failed, failed(full, err))
				}
				continue
			}
			isDir = target.IsDir()
		}
		if isDir {
			subdirs = append(subdirs, full)
			continue
		}
		if _, ok := w.exts[filepath.Ext(e.Name())]; !ok {
			continue
		}
		f := w.read(full)
		if f.ErrorOccurred {
			batch.Failed = append(batch.Failed, f)
		} else {
			batch.Files = append(batch.Files, f)
		}
	}
	if len(batch.Files) > 0 || len(batch.Failed) > 0 {
		w.stats.files.Add(int64(len(batch.Files)))
		w.stats.failed.Add(int64(len(batch.Failed)))
		w.onBatch(batch)
	}

	if depth+1 > w.r.cfg.MaxDepth {
		if len(subdirs) > 0 {
			w.r.logger.Warn("maximum depth reached, not descending", "dir", path, "depth", depth)
		}
		return nil
	}
	for _, sub := range subdirs {
		key := canonical(sub)
		if _, skip := w.r.exclude[key]; skip {
			continue
		}
		if _, seen := w.visited.LoadOrStore(key, struct{}{}); seen {
			continue
		}
		child, childDepth := sub, depth+1
		if childDepth <= w.r.cfg.ParallelDepth && w.group.TryGo(func() error { return w.dir(child, childDepth) }) {
			continue
		}
		if err := w.dir(child, childDepth); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) read(path string) File {
	rc, err := w.r.open(path)
	if err != nil {
		return failed(path, err)
	}
	defer rc.Close()
	var src io.Reader = rc
	if w.r.cfg.MaxFileSize > 0 {
		src = io.LimitReader(rc, w.r.cfg.MaxFileSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return failed(path, err)
	}
	if w.r.cfg.MaxFileSize > 0 && int64(len(data)) > w.r.cfg.MaxFileSize {
		return failed(path, fmt.Errorf("larger than %d bytes", w.r.cfg.MaxFileSize))
	}
	return File{Path: path, Content: Decode(data), Size: int64(len(data))}
}

func failed(path string, err error) File {
	return File{
		Path:          path,
		ErrorOccurred: true,
		Err:           fmt.Errorf("%w: %s: %v", apperrors.ErrFileAccess, path, err),
	}
}

// canonical resolves symlinks so that the same directory reached through
// different links is recognised.
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return filepath.Clean(abs)
}
