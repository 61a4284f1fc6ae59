package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/retrostock/retrostock/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingQuery", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?foo=bar",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123&foo=bar", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./retrostock.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./retrostock.db", dsn)
	})

	t.Run("PathMissing", func(t *testing.T) {
		cfg := config.StoreConfig{}

		_, err := buildLibsqlDSN(cfg)
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		cfg := config.StoreConfig{Path: ":memory:"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestBuildSQLiteDSN(t *testing.T) {
	dsn, err := buildSQLiteDSN(config.StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, ":memory:", dsn)

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "retrostock.db")
	dsn, err = buildSQLiteDSN(config.StoreConfig{Path: path})
	require.NoError(t, err)
	require.Equal(t, path, dsn)
	require.DirExists(t, filepath.Dir(path))

	_, err = buildSQLiteDSN(config.StoreConfig{URL: "libsql://remote"})
	require.Error(t, err)
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(config.StoreConfig{URL: "postgres://shop:pw@localhost:5432/retrostock?sslmode=disable"})
	require.NoError(t, err)
	require.Equal(t, "postgres://shop:pw@localhost:5432/retrostock?sslmode=disable", dsn)

	_, err = buildPostgresDSN(config.StoreConfig{Path: "./db"})
	require.Error(t, err)

	_, err = buildPostgresDSN(config.StoreConfig{URL: "mysql://localhost"})
	require.Error(t, err)
}

func TestRebindDollar(t *testing.T) {
	require.Equal(t,
		`SELECT * FROM items WHERE a = $1 AND b LIKE $2 ESCAPE '\' AND c IN ($3,$4)`,
		rebindDollar(`SELECT * FROM items WHERE a = ? AND b LIKE ? ESCAPE '\' AND c IN (?,?)`))
	require.Equal(t, `SELECT '?' , $1`, rebindDollar(`SELECT '?' , ?`))

	s := &Store{driver: driverSQLite}
	require.Equal(t, "a = ?", s.rebind("a = ?"))
	s.driver = driverPostgres
	require.Equal(t, "a = $1", s.rebind("a = ?"))
}

func TestDialectDDL(t *testing.T) {
	sqlite := &Store{driver: driverSQLite}
	pg := &Store{driver: driverPostgres}
	stmt := "CREATE TABLE t (id {{id}}, price {{real}})"

	require.Equal(t, "CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT, price REAL)", sqlite.dialectDDL(stmt))
	require.Equal(t, "CREATE TABLE t (id BIGSERIAL PRIMARY KEY, price DOUBLE PRECISION)", pg.dialectDDL(stmt))
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, isUniqueViolation(nil))
	require.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	require.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	require.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: categories.slug (2067)")))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestUninitializedStore(t *testing.T) {
	var s *Store
	require.NoError(t, s.Close())
	require.Error(t, s.Migrate(context.Background()))
	_, err := s.ListCategories(context.Background())
	require.Error(t, err)
}
