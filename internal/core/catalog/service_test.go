package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/store"
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, config.StoreConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	return NewService(st, Options{PageSize: 2, MaxPageSize: 3, FeaturedLimit: 2}), st
}

type seeded struct {
	category *core.Category
	nes      *core.Console
	ps1      *core.Console
}

func seedCatalog(t *testing.T, svc *Service) seeded {
	t.Helper()
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, CategoryInput{Name: "Retro <b>Consoles</b>"})
	require.NoError(t, err)
	nes, err := svc.CreateConsole(ctx, ConsoleInput{CategoryID: category.ID, Name: "NES", Manufacturer: "Nintendo", ReleaseYear: 1985})
	require.NoError(t, err)
	ps1, err := svc.CreateConsole(ctx, ConsoleInput{CategoryID: category.ID, Name: "PlayStation", Slug: "PS1"})
	require.NoError(t, err)
	return seeded{category: category, nes: nes, ps1: ps1}
}

func TestNormalizeItemValidation(t *testing.T) {
	_, err := NormalizeItem(ItemInput{
		Name:      "   ",
		Kind:      "toaster",
		Price:     -3,
		GoodPrice: core.Float64(-1),
		Quantity:  -1,
		ImageURL:  "ftp://example.com/a.png",
	})
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, map[string]string{
		"name":       "is required",
		"console_id": "is required",
		"kind":       `unknown item kind "toaster"`,
		"price":      "must not be negative",
		"good_price": "must not be negative",
		"quantity":   "must not be negative",
		"image_url":  "must be an http or https URL",
	}, vErr.Fields)
	require.Contains(t, vErr.Error(), "console_id: is required")
}

func TestNormalizeItemSanitizes(t *testing.T) {
	item, err := NormalizeItem(ItemInput{
		ConsoleID:   1,
		Name:        "  Castlevania <script>x()</script> ",
		Description: "<p>Label wear & <b>game only</b></p>",
		Kind:        "Games",
		Price:       40,
	})
	require.NoError(t, err)
	require.Equal(t, "Castlevania", item.Name)
	require.Equal(t, "castlevania", item.Slug)
	require.Equal(t, "Label wear & game only", item.Description)
	require.Equal(t, core.KindGame, item.Kind)
}

func TestCategoryAndConsoleCRUD(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	s := seedCatalog(t, svc)

	require.Equal(t, "Retro Consoles", s.category.Name)
	require.Equal(t, "retro-consoles", s.category.Slug)
	require.Equal(t, "ps1", s.ps1.Slug)
	require.Equal(t, "Retro Consoles", s.nes.CategoryName)

	updated, err := svc.UpdateConsole(ctx, s.ps1.ID, ConsoleInput{CategoryID: s.category.ID, Name: "PlayStation", Slug: "psx", ReleaseYear: 1995})
	require.NoError(t, err)
	require.Equal(t, "psx", updated.Slug)
	require.Equal(t, 1995, updated.ReleaseYear)

	_, err = svc.UpdateConsole(ctx, 999, ConsoleInput{CategoryID: s.category.ID, Name: "Ghost"})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.CreateConsole(ctx, ConsoleInput{CategoryID: s.category.ID, Name: "NES"})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.CreateConsole(ctx, ConsoleInput{CategoryID: s.category.ID, Name: "Odd", ReleaseYear: 1800})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Contains(t, vErr.Fields, "release_year")

	require.ErrorIs(t, svc.DeleteCategory(ctx, s.category.ID), store.ErrConflict)
	require.NoError(t, svc.DeleteConsole(ctx, s.ps1.ID))

	renamed, err := svc.UpdateCategory(ctx, s.category.ID, CategoryInput{Name: "Classics", SortOrder: 3})
	require.NoError(t, err)
	require.Equal(t, "classics", renamed.Slug)
	require.Equal(t, s.category.CreatedAt, renamed.CreatedAt)
}

func TestItemUpdateKeepsImagePath(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	s := seedCatalog(t, svc)

	item, err := svc.CreateItem(ctx, ItemInput{ConsoleID: s.nes.ID, Name: "Metroid", Price: 30, ImageURL: "https://img.example/m.png"})
	require.NoError(t, err)
	require.Equal(t, "NES", item.ConsoleName)
	require.NoError(t, st.SetItemImage(ctx, item.ID, "items/metroid.jpg"))

	same, err := svc.UpdateItem(ctx, item.ID, ItemInput{ConsoleID: s.nes.ID, Name: "Metroid", Price: 35, ImageURL: "https://img.example/m.png"})
	require.NoError(t, err)
	require.Equal(t, "items/metroid.jpg", same.ImagePath)
	require.Equal(t, 35.0, same.Price)

	changed, err := svc.UpdateItem(ctx, item.ID, ItemInput{ConsoleID: s.nes.ID, Name: "Metroid", Price: 35, ImageURL: "https://img.example/other.png"})
	require.NoError(t, err)
	require.Empty(t, changed.ImagePath)

	_, err = svc.CreateItem(ctx, ItemInput{ConsoleID: 999, Name: "Ghost"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStorefront(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	s := seedCatalog(t, svc)

	inputs := []ItemInput{
		{ConsoleID: s.nes.ID, Name: "Super Mario Bros", Price: 25, Quantity: 3, Featured: true},
		{ConsoleID: s.nes.ID, Name: "Duck Hunt", Price: 8, Quantity: 1, Featured: true},
		{ConsoleID: s.nes.ID, Name: "Zapper", Kind: "accessory", Price: 15, Quantity: 1},
		{ConsoleID: s.ps1.ID, Name: "Crash Bandicoot", Price: 20, Quantity: 0, Featured: true},
		{ConsoleID: s.ps1.ID, Name: "Mario Party (import)", Price: 60, Quantity: 1},
	}
	for _, in := range inputs {
		_, err := svc.CreateItem(ctx, in)
		require.NoError(t, err)
	}

	home, err := svc.Home(ctx)
	require.NoError(t, err)
	require.Len(t, home.Categories, 1)
	require.Len(t, home.Featured, 2)
	for _, item := range home.Featured {
		require.True(t, item.Featured)
		require.Positive(t, item.Quantity)
	}

	category, err := svc.Category(ctx, "RETRO-CONSOLES")
	require.NoError(t, err)
	require.Len(t, category.Consoles, 2)

	consolePage, err := svc.Console(ctx, "nes", store.SortPriceAsc, 2, 2)
	require.NoError(t, err)
	require.Equal(t, Page{Number: 2, Size: 2, Total: 3, Pages: 2, FirstRow: 2}, consolePage.Page)
	require.Len(t, consolePage.Items, 1)
	require.Equal(t, "Super Mario Bros", consolePage.Items[0].Name)

	_, err = svc.Console(ctx, "dreamcast", "", 1, 0)
	require.ErrorIs(t, err, store.ErrNotFound)

	result, err := svc.Search(ctx, SearchParams{Query: " mario ", PageSize: 50})
	require.NoError(t, err)
	require.Equal(t, "mario", result.Query)
	require.Equal(t, 3, result.Page.Size)
	require.Equal(t, 2, result.Page.Total)

	scoped, err := svc.Search(ctx, SearchParams{Query: "mario", ConsoleSlug: "ps1", MaxPrice: core.Float64(100)})
	require.NoError(t, err)
	require.Len(t, scoped.Items, 1)
	require.Equal(t, "Mario Party (import)", scoped.Items[0].Name)

	accessories, err := svc.Search(ctx, SearchParams{Kind: "accessories"})
	require.NoError(t, err)
	require.Equal(t, 1, accessories.Page.Total)

	unknown, err := svc.Search(ctx, SearchParams{Query: "mario", ConsoleSlug: "saturn"})
	require.NoError(t, err)
	require.Empty(t, unknown.Items)
	require.Equal(t, 0, unknown.Page.Total)

	_, err = svc.Search(ctx, SearchParams{MinPrice: core.Float64(10), MaxPrice: core.Float64(5)})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Contains(t, vErr.Fields, "min_price")
}

func TestDuplicateReport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	s := seedCatalog(t, svc)

	inputs := []ItemInput{
		{ConsoleID: s.ps1.ID, Name: "Tekken 3", Price: 20},
		{ConsoleID: s.nes.ID, Name: "Super Mario Bros", Price: 5},
		{ConsoleID: s.ps1.ID, Name: "tekken  3", Price: 12, Description: "Disc only, game only"},
		{ConsoleID: s.nes.ID, Name: "Super Mario Bros", Price: 8, GoodPrice: core.Float64(3)},
		{ConsoleID: s.ps1.ID, Name: "Super Mario Bros", Price: 99},
	}
	for _, in := range inputs {
		_, err := svc.CreateItem(ctx, in)
		require.NoError(t, err)
	}

	groups, err := svc.DuplicateReport(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	require.Equal(t, "super mario bros|id:1", groups[0].Key)
	for _, m := range groups[0].Members {
		require.True(t, m.ShowsGameOnly)
		require.False(t, m.ShowsCompleteInBox)
	}

	tekken := groups[1]
	require.Equal(t, "tekken 3|id:2", tekken.Key)
	require.True(t, tekken.Members[0].ShowsCompleteInBox)
	require.False(t, tekken.Members[0].ShowsGameOnly)
	require.True(t, tekken.Members[1].ShowsGameOnly)
	require.False(t, tekken.Members[1].ShowsCompleteInBox)
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	zero := 0
	data := SeedFile{Categories: []SeedCategory{{
		Name: "Nintendo",
		Consoles: []SeedConsole{{
			Name:         "NES",
			Manufacturer: "Nintendo",
			ReleaseYear:  1985,
			Items: []SeedItem{
				{Name: "Metroid", Price: 30, Featured: true},
				{Name: "Zapper", Kind: "accessories", Price: 12, Quantity: &zero},
			},
		}},
	}}}

	report, err := svc.Seed(ctx, data)
	require.NoError(t, err)
	require.Equal(t, SeedReport{CategoriesCreated: 1, ConsolesCreated: 1, ItemsCreated: 2}, *report)

	report, err = svc.Seed(ctx, data)
	require.NoError(t, err)
	require.Equal(t, SeedReport{ItemsSkipped: 2}, *report)

	nes, err := st.GetConsoleBySlug(ctx, "nes")
	require.NoError(t, err)
	items, total, err := st.ListItems(ctx, store.ItemQuery{ConsoleID: nes.ID, Sort: store.SortName})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, 1, items[0].Quantity)
	require.Equal(t, core.KindAccessory, items[1].Kind)
	require.Equal(t, 0, items[1].Quantity)
}

func TestSeedStopsOnInvalidItem(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Seed(context.Background(), SeedFile{Categories: []SeedCategory{{
		Name:     "Sega",
		Consoles: []SeedConsole{{Name: "Genesis", Items: []SeedItem{{Name: "Sonic", Price: -1}}}},
	}}})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Contains(t, err.Error(), `item "Sonic" on Genesis`)
}
