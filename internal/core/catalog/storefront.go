package catalog

import (
	"context"
	"strings"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/store"
)

// HomePage is the storefront landing payload.
type HomePage struct {
	Categories []core.Category `json:"categories"`
	Featured   []core.Item     `json:"featured"`
}

// CategoryPage lists a category's consoles.
type CategoryPage struct {
	Category core.Category  `json:"category"`
	Consoles []core.Console `json:"consoles"`
}

// Page describes pagination of a listing.
type Page struct {
	Number   int `json:"page"`
	Size     int `json:"page_size"`
	Total    int `json:"total"`
	Pages    int `json:"pages"`
	FirstRow int `json:"-"`
}

// ConsolePage lists one page of a console's items.
type ConsolePage struct {
	Console core.Console `json:"console"`
	Items   []core.Item  `json:"items"`
	Page    Page         `json:"pagination"`
}

// SearchParams are the public search filters.
type SearchParams struct {
	Query       string
	ConsoleSlug string
	Kind        string
	MinPrice    *float64
	MaxPrice    *float64
	Sort        string
	Page        int
	PageSize    int
}

// SearchResult is one page of matches.
type SearchResult struct {
	Query string      `json:"query"`
	Items []core.Item `json:"items"`
	Page  Page        `json:"pagination"`
}

// Home returns categories and featured in-stock items.
func (s *Service) Home(ctx context.Context) (*HomePage, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	featured := true
	items, _, err := s.store.ListItems(ctx, store.ItemQuery{
		Featured: &featured,
		InStock:  true,
		Sort:     store.SortNewest,
		Limit:    s.opts.FeaturedLimit,
	})
	if err != nil {
		return nil, err
	}

	return &HomePage{Categories: nonNil(categories), Featured: nonNil(items)}, nil
}

// Category returns a category and its consoles.
func (s *Service) Category(ctx context.Context, slug string) (*CategoryPage, error) {
	category, err := s.store.GetCategoryBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	consoles, err := s.store.ListConsoles(ctx, store.ConsoleFilter{CategoryID: category.ID})
	if err != nil {
		return nil, err
	}
	return &CategoryPage{Category: *category, Consoles: nonNil(consoles)}, nil
}

// Console returns one page of a console's items.
func (s *Service) Console(ctx context.Context, slug string, sortBy string, page, pageSize int) (*ConsolePage, error) {
	console, err := s.store.GetConsoleBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}

	p := s.paginate(page, pageSize)
	items, total, err := s.store.ListItems(ctx, store.ItemQuery{
		ConsoleID: console.ID,
		Sort:      sortBy,
		Limit:     p.Size,
		Offset:    p.FirstRow,
	})
	if err != nil {
		return nil, err
	}
	p.setTotal(total)

	return &ConsolePage{Console: *console, Items: nonNil(items), Page: p}, nil
}

// Search finds items by text and filters. An unknown console slug yields no
// results rather than an error.
func (s *Service) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	query := strings.TrimSpace(params.Query)
	p := s.paginate(params.Page, params.PageSize)
	result := &SearchResult{Query: query, Items: []core.Item{}, Page: p}

	errs := fieldErrors{}
	var kind core.ItemKind
	if strings.TrimSpace(params.Kind) != "" {
		parsed, err := core.ParseItemKind(params.Kind)
		if err != nil {
			errs.add("kind", err.Error())
		}
		kind = parsed
	}
	checkPrice(errs, "min_price", params.MinPrice)
	checkPrice(errs, "max_price", params.MaxPrice)
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		errs.add("min_price", "must not exceed max_price")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	q := store.ItemQuery{
		Search:   query,
		Kind:     kind,
		MinPrice: params.MinPrice,
		MaxPrice: params.MaxPrice,
		Sort:     params.Sort,
		Limit:    p.Size,
		Offset:   p.FirstRow,
	}
	if slug := strings.TrimSpace(params.ConsoleSlug); slug != "" {
		console, err := s.store.GetConsoleBySlug(ctx, strings.ToLower(slug))
		if err != nil {
			if isNotFound(err) {
				result.Page.setTotal(0)
				return result, nil
			}
			return nil, err
		}
		q.ConsoleID = console.ID
	}

	items, total, err := s.store.ListItems(ctx, q)
	if err != nil {
		return nil, err
	}
	result.Items = nonNil(items)
	result.Page.setTotal(total)
	return result, nil
}

func (s *Service) paginate(page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.opts.PageSize
	}
	if size > s.opts.MaxPageSize {
		size = s.opts.MaxPageSize
	}
	return Page{Number: page, Size: size, FirstRow: (page - 1) * size}
}

func (p *Page) setTotal(total int) {
	p.Total = total
	p.Pages = 0
	if total > 0 && p.Size > 0 {
		p.Pages = (total + p.Size - 1) / p.Size
	}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
