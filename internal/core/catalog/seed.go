package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core/store"
	"github.com/retrostock/retrostock/internal/observability"
)

// SeedFile is the shape of a catalog seed document.
type SeedFile struct {
	Categories []SeedCategory `yaml:"categories" json:"categories"`
}

// SeedCategory is a category with its consoles.
type SeedCategory struct {
	Name        string        `yaml:"name" json:"name"`
	Slug        string        `yaml:"slug" json:"slug"`
	Description string        `yaml:"description" json:"description"`
	SortOrder   int           `yaml:"sort_order" json:"sort_order"`
	Consoles    []SeedConsole `yaml:"consoles" json:"consoles"`
}

// SeedConsole is a console with its items.
type SeedConsole struct {
	Name         string     `yaml:"name" json:"name"`
	Slug         string     `yaml:"slug" json:"slug"`
	Manufacturer string     `yaml:"manufacturer" json:"manufacturer"`
	ReleaseYear  int        `yaml:"release_year" json:"release_year"`
	Items        []SeedItem `yaml:"items" json:"items"`
}

// SeedItem is one inventory item.
type SeedItem struct {
	Name            string   `yaml:"name" json:"name"`
	Slug            string   `yaml:"slug" json:"slug"`
	Kind            string   `yaml:"kind" json:"kind"`
	Price           float64  `yaml:"price" json:"price"`
	GoodPrice       *float64 `yaml:"good_price" json:"good_price"`
	AcceptablePrice *float64 `yaml:"acceptable_price" json:"acceptable_price"`
	Description     string   `yaml:"description" json:"description"`
	Quantity        *int     `yaml:"quantity" json:"quantity"`
	ImageURL        string   `yaml:"image_url" json:"image_url"`
	Featured        bool     `yaml:"featured" json:"featured"`
}

// SeedReport counts what Seed created and what already existed.
type SeedReport struct {
	CategoriesCreated int `json:"categories_created"`
	ConsolesCreated   int `json:"consoles_created"`
	ItemsCreated      int `json:"items_created"`
	ItemsSkipped      int `json:"items_skipped"`
}

// Seed loads data into the catalog. Categories and consoles are matched by
// slug and reused; items whose slug already exists on their console are
// skipped, so a seed file can be applied more than once.
func (s *Service) Seed(ctx context.Context, data SeedFile) (*SeedReport, error) {
	report := &SeedReport{}

	for _, sc := range data.Categories {
		categoryIn := CategoryInput{Name: sc.Name, Slug: sc.Slug, Description: sc.Description, SortOrder: sc.SortOrder}
		normalized, err := NormalizeCategory(categoryIn)
		if err != nil {
			return report, fmt.Errorf("category %q: %w", sc.Name, err)
		}
		category, err := s.store.GetCategoryBySlug(ctx, normalized.Slug)
		if isNotFound(err) {
			category, err = s.CreateCategory(ctx, categoryIn)
			if err == nil {
				report.CategoriesCreated++
			}
		}
		if err != nil {
			return report, fmt.Errorf("category %q: %w", sc.Name, err)
		}

		for _, sk := range sc.Consoles {
			consoleIn := ConsoleInput{
				CategoryID:   category.ID,
				Name:         sk.Name,
				Slug:         sk.Slug,
				Manufacturer: sk.Manufacturer,
				ReleaseYear:  sk.ReleaseYear,
			}
			normalizedConsole, err := NormalizeConsole(consoleIn)
			if err != nil {
				return report, fmt.Errorf("console %q: %w", sk.Name, err)
			}
			console, err := s.store.GetConsoleBySlug(ctx, normalizedConsole.Slug)
			if isNotFound(err) {
				console, err = s.CreateConsole(ctx, consoleIn)
				if err == nil {
					report.ConsolesCreated++
				}
			}
			if err != nil {
				return report, fmt.Errorf("console %q: %w", sk.Name, err)
			}

			existing, _, err := s.store.ListItems(ctx, store.ItemQuery{ConsoleID: console.ID})
			if err != nil {
				return report, fmt.Errorf("console %q: %w", sk.Name, err)
			}
			slugs := make(map[string]struct{}, len(existing))
			for _, item := range existing {
				slugs[item.Slug] = struct{}{}
			}

			for _, si := range sk.Items {
				quantity := 1
				if si.Quantity != nil {
					quantity = *si.Quantity
				}
				itemIn := ItemInput{
					ConsoleID:       console.ID,
					Name:            si.Name,
					Slug:            si.Slug,
					Kind:            si.Kind,
					Price:           si.Price,
					GoodPrice:       si.GoodPrice,
					AcceptablePrice: si.AcceptablePrice,
					Description:     si.Description,
					Quantity:        quantity,
					ImageURL:        si.ImageURL,
					Featured:        si.Featured,
				}
				normalizedItem, err := NormalizeItem(itemIn)
				if err != nil {
					return report, fmt.Errorf("item %q on %s: %w", si.Name, console.Name, err)
				}
				if _, seen := slugs[normalizedItem.Slug]; seen {
					report.ItemsSkipped++
					continue
				}
				if _, err := s.CreateItem(ctx, itemIn); err != nil {
					return report, fmt.Errorf("item %q on %s: %w", si.Name, console.Name, err)
				}
				slugs[normalizedItem.Slug] = struct{}{}
				report.ItemsCreated++
			}
		}
	}

	observability.Info("Catalog seeded",
		zap.Int("categories_created", report.CategoriesCreated),
		zap.Int("consoles_created", report.ConsolesCreated),
		zap.Int("items_created", report.ItemsCreated),
		zap.Int("items_skipped", report.ItemsSkipped))
	return report, nil
}
