// Package store owns the backing directory of one index: the single-writer
// lock file, the committed manifest listing live segments, and cleanup of
// files left by an earlier build.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
)

const (
	LockFile        = "write.lock"
	ManifestFile    = "manifest.json"
	ManifestVersion = 1
)

// Fields names the indexed and stored fields every index carries.
var Fields = []string{"content", "path"}

// Manifest is the commit point of an index. An index without a manifest is
// not searchable.
type Manifest struct {
	ID         string    `json:"id"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Fields     []string  `json:"fields"`
	Segments   []string  `json:"segments"`
	DocCount   int64     `json:"doc_count"`
	TermCount  int64     `json:"term_count"`
	TotalLen   int64     `json:"total_length"`
	Source     string    `json:"source"`
	Extensions []string  `json:"extensions"`
}

// Directory is an opened index directory.
type Directory struct {
	path     string
	writable bool
	lock     *os.File
	logger   *slog.Logger
}

// OpenWriter opens dir for exclusive writing, creating it if needed. A second
// writer on the same directory fails with ErrConcurrency until the first one
// calls Release.
func OpenWriter(dir string) (*Directory, error) {
	if dir == "" {
		return nil, apperrors.New(apperrors.ErrInvalidArgument, "store.OpenWriter", "index path is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving index path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating index directory: %v", apperrors.ErrIO, err)
	}
	lockPath := filepath.Join(abs, LockFile)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, apperrors.Newf(apperrors.ErrConcurrency, "store.OpenWriter", "%s is held by another writer", lockPath)
		}
		return nil, fmt.Errorf("%w: creating lock file: %v", apperrors.ErrIO, err)
	}
	fmt.Fprintf(f, "pid=%d\nacquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return &Directory{
		path:     abs,
		writable: true,
		lock:     f,
		logger:   slog.Default().With("component", "index-store", "path", abs),
	}, nil
}

// OpenReader opens a committed index read-only.
func OpenReader(dir string) (*Directory, *Manifest, error) {
	if dir == "" {
		return nil, nil, apperrors.New(apperrors.ErrInvalidArgument, "store.OpenReader", "index path is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving index path: %w", err)
	}
	d := &Directory{
		path:   abs,
		logger: slog.Default().With("component", "index-store", "path", abs),
	}
	m, err := d.ReadManifest()
	if err != nil {
		return nil, nil, err
	}
	return d, m, nil
}

func (d *Directory) Path() string {
	return d.path
}

// SegmentPath returns the full path of a segment file in this directory.
func (d *Directory) SegmentPath(name string) string {
	return filepath.Join(d.path, name)
}

// ReadManifest loads the committed manifest.
func (d *Directory) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(d.path, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "store.ReadManifest", "no committed index in %s", d.path)
		}
		return nil, fmt.Errorf("%w: reading manifest: %v", apperrors.ErrIO, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "store.ReadManifest", "corrupt manifest in %s: %v", d.path, err)
	}
	if m.Version != ManifestVersion {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "store.ReadManifest", "unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// Commit atomically replaces the manifest. A fresh ID is assigned when m.ID
// is empty.
func (d *Directory) Commit(m *Manifest) error {
	if !d.writable {
		return apperrors.New(apperrors.ErrInvalidOperation, "store.Commit", "directory opened read-only")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Version = ManifestVersion
	if m.Fields == nil {
		m.Fields = Fields
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	final := filepath.Join(d.path, ManifestFile)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", apperrors.ErrIO, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: committing manifest: %v", apperrors.ErrIO, err)
	}
	d.logger.Info("manifest committed",
		"id", m.ID,
		"segments", len(m.Segments),
		"docs", m.DocCount,
	)
	return nil
}

// Clear removes the manifest and every segment file, leaving the lock in
// place. A rebuild starts from an empty directory.
func (d *Directory) Clear() error {
	if !d.writable {
		return apperrors.New(apperrors.ErrInvalidOperation, "store.Clear", "directory opened read-only")
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return fmt.Errorf("%w: listing index directory: %v", apperrors.ErrIO, err)
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == LockFile {
			continue
		}
		if name == ManifestFile || strings.HasSuffix(name, segment.Extension) || strings.HasSuffix(name, ".tmp") {
			if err := os.Remove(filepath.Join(d.path, name)); err != nil {
				return fmt.Errorf("%w: removing %s: %v", apperrors.ErrIO, name, err)
			}
			removed++
		}
	}
	if removed > 0 {
		d.logger.Info("cleared previous index files", "removed", removed)
	}
	return nil
}

// RemoveSegments deletes segment files no longer referenced by the manifest.
func (d *Directory) RemoveSegments(names []string) {
	for _, name := range names {
		if err := os.Remove(filepath.Join(d.path, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("failed to remove obsolete segment", "segment", name, "error", err)
		}
	}
}

// Release drops the writer lock. It is a no-op for read-only directories and
// safe to call more than once.
func (d *Directory) Release() error {
	if d.lock == nil {
		return nil
	}
	lockPath := d.lock.Name()
	closeErr := d.lock.Close()
	d.lock = nil
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: removing lock file: %v", apperrors.ErrIO, err)
	}
	return closeErr
}

// Locked reports whether a writer currently holds dir.
func Locked(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, LockFile))
	return err == nil
}
