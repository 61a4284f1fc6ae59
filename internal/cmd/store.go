package cmd

import (
	"context"
	"fmt"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/store"
)

// openStore loads configuration and returns a migrated store. Callers own
// closing it.
func openStore(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := openConfiguredStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func openConfiguredStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func catalogOptions(cfg config.CatalogConfig) catalog.Options {
	return catalog.Options{
		ClassicConsoles: cfg.ClassicConsoles,
		PageSize:        cfg.PageSize,
		MaxPageSize:     cfg.MaxPageSize,
		FeaturedLimit:   cfg.FeaturedLimit,
	}
}
