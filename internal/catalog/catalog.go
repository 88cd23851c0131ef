// Package catalog records named indexes so they can be searched by name
// instead of by directory.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
)

const schema = `CREATE TABLE IF NOT EXISTS indexes (
	name        TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	index_path  TEXT NOT NULL,
	extensions  TEXT NOT NULL,
	file_count  BIGINT NOT NULL,
	index_id    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
)`

// Entry describes one named index.
type Entry struct {
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	IndexPath  string    `json:"index_path"`
	Extensions []string  `json:"extensions"`
	FileCount  int64     `json:"file_count"`
	IndexID    string    `json:"index_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Catalog struct {
	db     *database.Client
	logger *slog.Logger
}

// New prepares the schema on db.
func New(ctx context.Context, db *database.Client) (*Catalog, error) {
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return &Catalog{
		db:     db,
		logger: slog.Default().With("component", "catalog", "driver", db.Driver()),
	}, nil
}

// Register inserts e or, when the name is taken, replaces everything but its
// creation time.
func (c *Catalog) Register(ctx context.Context, e Entry) error {
	if e.Name == "" {
		return apperrors.New(apperrors.ErrInvalidArgument, "catalog.Register", "name is empty")
	}
	now := time.Now().UTC()
	_, err := c.db.DB.ExecContext(ctx, c.db.Rebind(`
		INSERT INTO indexes (name, source, index_path, extensions, file_count, index_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			source = excluded.source,
			index_path = excluded.index_path,
			extensions = excluded.extensions,
			file_count = excluded.file_count,
			index_id = excluded.index_id,
			updated_at = excluded.updated_at`),
		e.Name, e.Source, e.IndexPath, strings.Join(e.Extensions, ","), e.FileCount, e.IndexID,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("registering index %q: %w", e.Name, err)
	}
	c.logger.Info("index registered", "name", e.Name, "path", e.IndexPath, "files", e.FileCount)
	return nil
}

func (c *Catalog) Get(ctx context.Context, name string) (*Entry, error) {
	row := c.db.DB.QueryRowContext(ctx, c.db.Rebind(`
		SELECT name, source, index_path, extensions, file_count, index_id, created_at, updated_at
		FROM indexes WHERE name = ?`), name)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrIndexNotFound, "catalog.Get", "no index named %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading index %q: %w", name, err)
	}
	return e, nil
}

// List returns every entry ordered by name.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.DB.QueryContext(ctx, `
		SELECT name, source, index_path, extensions, file_count, index_id, created_at, updated_at
		FROM indexes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing indexes: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Delete forgets name. With removeFiles the index directory goes too, after
// the row is gone.
func (c *Catalog) Delete(ctx context.Context, name string, removeFiles bool) error {
	var indexPath string
	err := c.db.InTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, c.db.Rebind(`SELECT index_path FROM indexes WHERE name = ?`), name)
		if err := row.Scan(&indexPath); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, c.db.Rebind(`DELETE FROM indexes WHERE name = ?`), name)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Newf(apperrors.ErrIndexNotFound, "catalog.Delete", "no index named %q", name)
	}
	if err != nil {
		return fmt.Errorf("deleting index %q: %w", name, err)
	}
	if removeFiles {
		if err := os.RemoveAll(indexPath); err != nil {
			return fmt.Errorf("%w: removing %s: %v", apperrors.ErrIO, indexPath, err)
		}
	}
	c.logger.Info("index deleted", "name", name, "files_removed", removeFiles)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*Entry, error) {
	var (
		e                Entry
		exts             string
		created, updated string
	)
	if err := s.Scan(&e.Name, &e.Source, &e.IndexPath, &exts, &e.FileCount, &e.IndexID, &created, &updated); err != nil {
		return nil, err
	}
	if exts != "" {
		e.Extensions = strings.Split(exts, ",")
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &e, nil
}
