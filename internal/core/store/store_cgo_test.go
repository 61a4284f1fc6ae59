//go:build cgo

package store

import (
	"context"
	"testing"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())

	require.NoError(t, store.Migrate(ctx))
	category := &core.Category{Name: "Nintendo", Slug: "nintendo"}
	require.NoError(t, store.CreateCategory(ctx, category))
	require.NotZero(t, category.ID)

	require.NoError(t, store.Close())
}
