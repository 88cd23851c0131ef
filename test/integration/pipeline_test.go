// Package integration contains tests that drive several components together
// through the codesearch entry point. Tests that need Redis or PostgreSQL
// skip when the service is unreachable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/codesearch"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/watch"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/database"
	pkgredis "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func skipIfNoPostgres(t *testing.T) *database.Client {
	t.Helper()
	db, err := database.Open(config.CatalogConfig{
		Driver: database.DriverPostgres,
		Postgres: config.PostgresConfig{
			Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
			Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
			Database:        envOrDefault("TEST_POSTGRES_DB", "codesearch_test"),
			User:            envOrDefault("TEST_POSTGRES_USER", "codesearch"),
			Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
	})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	rc, err := pkgredis.NewClient(config.RedisConfig{Addr: envOrDefault("TEST_REDIS_ADDR", "localhost:6379"), PoolSize: 4})
	if err != nil {
		t.Skipf("skipping: redis unavailable: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return rc
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestBuildSearchExportPipeline(t *testing.T) {
	src, idx := t.TempDir(), filepath.Join(t.TempDir(), "index")
	writeTree(t, src, map[string]string{
		"cmd/main.go":          "package main\n\nfunc main() { run() }\n",
		"internal/run/run.go":  "package run\n\n// Run starts the loop.\nfunc Run() {}\n",
		"internal/run/doc.txt": "run run run",
		"README.md":            "# Run",
	})
	e := codesearch.New(config.Default())
	ctx := context.Background()

	stats, err := e.CreateIndex(ctx, src, idx, []string{".go", ".md"}, codesearch.Events{}).Wait()
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Files)

	res, err := e.Search(ctx, idx, "run", 10, false)
	require.NoError(t, err)
	require.Equal(t, 3, res.NumberOfHits())

	details, err := e.Export(ctx, res, "run", false)
	require.NoError(t, err)
	total := 0
	for _, d := range details {
		require.NoError(t, d.Err)
		require.NotEmpty(t, d.Findings)
		total += len(d.Findings)
	}
	require.Equal(t, 5, total)

	res, err = e.Search(ctx, idx, "r?n", 1, true)
	require.NoError(t, err)
	require.Equal(t, 1, res.NumberOfHits())
	require.Equal(t, 3, res.TotalMatches())
}

func TestWatchRebuildsIndex(t *testing.T) {
	src := t.TempDir()
	idx := filepath.Join(src, ".codesearch")
	writeTree(t, src, map[string]string{"a.go": "package alpha"})
	e := codesearch.New(config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	build := func(ctx context.Context) error {
		_, err := e.CreateIndex(ctx, src, idx, []string{".go"}, codesearch.Events{}).Wait()
		return err
	}
	require.NoError(t, build(ctx))

	w, err := watch.New(src, []string{".go"}, 50*time.Millisecond, build, idx)
	require.NoError(t, err)
	go w.Run(ctx)

	writeTree(t, src, map[string]string{"b.go": "package beta"})
	require.Eventually(t, func() bool {
		res, err := e.Search(context.Background(), idx, "beta", 5, false)
		return err == nil && res.NumberOfHits() == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPostgresCatalog(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	cat, err := catalog.New(ctx, db)
	require.NoError(t, err)

	src, idx := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"x.go": "package x"})
	e := codesearch.New(config.Default(), codesearch.WithCatalog(cat))
	name := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() { cat.Delete(context.Background(), name, false) })

	stats, err := e.CreateIndex(ctx, src, idx, []string{".go"}, codesearch.Events{}).Wait()
	require.NoError(t, err)
	require.NoError(t, e.Register(ctx, name, src, idx, []string{".go"}, stats))

	res, err := e.Search(ctx, name, "x", 5, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.NumberOfHits())
}

func TestRedisCacheSurvivesRebuild(t *testing.T) {
	rc := skipIfNoRedis(t)
	qc := cache.New(rc, time.Minute, nil)
	src, idx := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.go": "package shared"})
	e := codesearch.New(config.Default(), codesearch.WithSearcherOptions(searcher.WithCache(qc)))
	ctx := context.Background()

	_, err := e.CreateIndex(ctx, src, idx, []string{".go"}, codesearch.Events{}).Wait()
	require.NoError(t, err)
	res, err := e.Search(ctx, idx, "shared", 10, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.NumberOfHits())

	writeTree(t, src, map[string]string{"b.go": "package shared"})
	_, err = e.CreateIndex(ctx, src, idx, []string{".go"}, codesearch.Events{}).Wait()
	require.NoError(t, err)
	res, err = e.Search(ctx, idx, "shared", 10, false)
	require.NoError(t, err)
	require.Equal(t, 2, res.NumberOfHits(), "a new index generation must not hit old cache entries")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
