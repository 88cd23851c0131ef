package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Walker.Workers)
	require.Equal(t, "sqlite", cfg.Catalog.Driver)
	require.Equal(t, 100, cfg.Search.DefaultLimit)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codesearch.yaml")
	data := `
indexer:
  indexDir: /var/idx
  extensions: [".cs", ".xml"]
walker:
  workers: 2
  parallelDepth: 1
search:
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/idx", cfg.Indexer.IndexDir)
	require.Equal(t, []string{".cs", ".xml"}, cfg.Indexer.Extensions)
	require.Equal(t, 2, cfg.Walker.Workers)
	require.Equal(t, 1, cfg.Walker.ParallelDepth)
	require.Equal(t, 5*time.Second, cfg.Search.Timeout)
	// untouched sections keep defaults
	require.Equal(t, 64, cfg.Walker.MaxDepth)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codesearch.toml")
	data := `
[indexer]
index_dir = "/srv/idx"
extensions = [".go"]

[catalog]
enabled = true
driver = "postgres"

[catalog.postgres]
host = "db"
port = 6543
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/idx", cfg.Indexer.IndexDir)
	require.Equal(t, []string{".go"}, cfg.Indexer.Extensions)
	require.True(t, cfg.Catalog.Enabled)
	require.Equal(t, "postgres", cfg.Catalog.Driver)
	require.Equal(t, "db", cfg.Catalog.Postgres.Host)
	require.Equal(t, 6543, cfg.Catalog.Postgres.Port)
	require.Contains(t, cfg.Catalog.Postgres.DSN(), "host=db port=6543")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CS_EXTENSIONS", ".txt, .cs ,")
	t.Setenv("CS_WALKER_WORKERS", "3")
	t.Setenv("CS_REDIS_ADDR", "cache:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{".txt", ".cs"}, cfg.Indexer.Extensions)
	require.Equal(t, 3, cfg.Walker.Workers)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Walker.Workers = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Catalog.Driver = "mysql"
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
