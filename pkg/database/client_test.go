package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
)

func TestOpenSQLite(t *testing.T) {
	c, err := Open(config.CatalogConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "sub", "c.db")})
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, DriverSQLite, c.Driver())

	_, err = c.DB.Exec(`CREATE TABLE t (v INTEGER)`)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = c.InTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t (v) VALUES (1)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, c.DB.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	require.Zero(t, n)
}

func TestUnknownDriver(t *testing.T) {
	_, err := Open(config.CatalogConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Client{driver: DriverPostgres}
	require.Equal(t, "SELECT * FROM x WHERE a = $1 AND b = $2", pg.Rebind("SELECT * FROM x WHERE a = ? AND b = ?"))
	lite := &Client{driver: DriverSQLite}
	require.Equal(t, "a = ?", lite.Rebind("a = ?"))
}
