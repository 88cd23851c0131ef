// Package watch rebuilds an index when files under its source tree change.
// Bursts of events are coalesced: a rebuild starts once the tree has been
// quiet for the debounce interval.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RebuildFunc performs one rebuild. It is never called concurrently.
type RebuildFunc func(ctx context.Context) error

type Watcher struct {
	root     string
	exclude  []string
	exts     map[string]struct{}
	debounce time.Duration
	rebuild  RebuildFunc
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
}

// New watches root recursively. Changes below any excluded directory, or to
// files whose extension is not in exts, are ignored.
func New(root string, exts []string, debounce time.Duration, rebuild RebuildFunc, exclude ...string) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Watcher{
		root:     abs,
		exts:     make(map[string]struct{}, len(exts)),
		debounce: debounce,
		rebuild:  rebuild,
		fsw:      fsw,
		logger:   slog.Default().With("component", "watch", "root", abs),
	}
	for _, ext := range exts {
		w.exts[ext] = struct{}{}
	}
	for _, ex := range exclude {
		if a, err := filepath.Abs(ex); err == nil {
			w.exclude = append(w.exclude, a)
		}
	}
	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", "dir", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) excluded(path string) bool {
	for _, ex := range w.exclude {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// relevant reports whether an event may change the index contents.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if w.excluded(ev.Name) || ev.Op == fsnotify.Chmod {
		return false
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) {
			w.addTree(ev.Name)
		}
		return true
	}
	_, ok := w.exts[filepath.Ext(ev.Name)]
	// A removed directory cannot be stat'ed, so extension-less removals count.
	return ok || (filepath.Ext(ev.Name) == "" && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)))
}

// Run processes events until ctx is done. Rebuild errors are logged and do
// not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := false

	w.logger.Info("watching for changes", "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			pending = true
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			start := time.Now()
			if err := w.rebuild(ctx); err != nil {
				w.logger.Error("rebuild failed", "error", err)
				continue
			}
			w.logger.Info("rebuild finished", "elapsed", time.Since(start))
		}
	}
}
