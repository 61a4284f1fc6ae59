package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retrostock/retrostock/internal/config"
)

func TestOpenLocalStoreConfiguresSQLite(t *testing.T) {
	ctx := context.Background()

	cfg := config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "data", "retrostock.db"),
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.GreaterOrEqual(t, busyTimeout, 1000)
}

func TestIsLocalDSN(t *testing.T) {
	require.True(t, isLocalDSN("libsql", "file:/var/lib/retrostock.db"))
	require.True(t, isLocalDSN("sqlite", "/tmp/retrostock.db"))
	require.False(t, isLocalDSN("libsql", ":memory:"))
	require.False(t, isLocalDSN("libsql", "libsql://shop.turso.io?authToken=x"))
	require.False(t, isLocalDSN("libsql", "https://shop.turso.io"))
	require.False(t, isLocalDSN("postgres", "postgres://localhost/shop"))
}
