// Package catalog is the business layer over the store: input validation,
// storefront reads and the duplicate report.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/dedupe"
	"github.com/retrostock/retrostock/internal/core/sanitize"
	"github.com/retrostock/retrostock/internal/core/store"
	"github.com/retrostock/retrostock/internal/metrics"
	"github.com/retrostock/retrostock/internal/observability"
)

// Store is the persistence surface the service needs.
type Store interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
	GetCategory(ctx context.Context, id int64) (*core.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*core.Category, error)
	CreateCategory(ctx context.Context, c *core.Category) error
	UpdateCategory(ctx context.Context, c *core.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListConsoles(ctx context.Context, filter store.ConsoleFilter) ([]core.Console, error)
	GetConsole(ctx context.Context, id int64) (*core.Console, error)
	GetConsoleBySlug(ctx context.Context, slug string) (*core.Console, error)
	CreateConsole(ctx context.Context, c *core.Console) error
	UpdateConsole(ctx context.Context, c *core.Console) error
	DeleteConsole(ctx context.Context, id int64) error

	ListItems(ctx context.Context, q store.ItemQuery) ([]core.Item, int, error)
	GetItem(ctx context.Context, id int64) (*core.Item, error)
	CreateItem(ctx context.Context, item *core.Item) error
	UpdateItem(ctx context.Context, item *core.Item) error
	DeleteItem(ctx context.Context, id int64) error
	ListInventoryRecords(ctx context.Context) ([]core.InventoryRecord, error)
}

// Options tunes listings and the duplicate report.
type Options struct {
	ClassicConsoles []string
	PageSize        int
	MaxPageSize     int
	FeaturedLimit   int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 24
	}
	if o.MaxPageSize < o.PageSize {
		o.MaxPageSize = max(100, o.PageSize)
	}
	if o.FeaturedLimit <= 0 {
		o.FeaturedLimit = 8
	}
	return o
}

// Service implements catalog operations.
type Service struct {
	store   Store
	grouper *dedupe.Grouper
	opts    Options
}

// NewService builds a catalog service.
func NewService(st Store, opts Options) *Service {
	return &Service{
		store:   st,
		grouper: dedupe.NewGrouper(opts.ClassicConsoles),
		opts:    opts.withDefaults(),
	}
}

// ValidationError lists invalid input fields and why.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, reason string) {
	if _, exists := f[field]; !exists {
		f[field] = reason
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// CategoryInput is the writable shape of a category.
type CategoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

// ConsoleInput is the writable shape of a console.
type ConsoleInput struct {
	CategoryID   int64  `json:"category_id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Manufacturer string `json:"manufacturer"`
	ReleaseYear  int    `json:"release_year"`
	ImagePath    string `json:"image_path"`
}

// ItemInput is the writable shape of an item.
type ItemInput struct {
	ConsoleID       int64    `json:"console_id"`
	Name            string   `json:"name"`
	Slug            string   `json:"slug"`
	Kind            string   `json:"kind"`
	Price           float64  `json:"price"`
	GoodPrice       *float64 `json:"good_price"`
	AcceptablePrice *float64 `json:"acceptable_price"`
	Description     string   `json:"description"`
	Quantity        int      `json:"quantity"`
	ImageURL        string   `json:"image_url"`
	Featured        bool     `json:"featured"`
}

// NormalizeCategory validates in and returns the category to store.
func NormalizeCategory(in CategoryInput) (*core.Category, error) {
	errs := fieldErrors{}
	name := sanitize.Line(in.Name)
	if name == "" {
		errs.add("name", "is required")
	}
	slug := slugFor(in.Slug, name)
	if slug == "" && name != "" {
		errs.add("slug", "must contain letters or digits")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return &core.Category{
		Name:        name,
		Slug:        slug,
		Description: sanitize.Text(in.Description),
		SortOrder:   in.SortOrder,
	}, nil
}

// NormalizeConsole validates in and returns the console to store.
func NormalizeConsole(in ConsoleInput) (*core.Console, error) {
	errs := fieldErrors{}
	name := sanitize.Line(in.Name)
	if name == "" {
		errs.add("name", "is required")
	}
	if in.CategoryID <= 0 {
		errs.add("category_id", "is required")
	}
	slug := slugFor(in.Slug, name)
	if slug == "" && name != "" {
		errs.add("slug", "must contain letters or digits")
	}
	if in.ReleaseYear != 0 && (in.ReleaseYear < 1970 || in.ReleaseYear > 2100) {
		errs.add("release_year", "must be between 1970 and 2100")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return &core.Console{
		CategoryID:   in.CategoryID,
		Name:         name,
		Slug:         slug,
		Manufacturer: sanitize.Line(in.Manufacturer),
		ReleaseYear:  in.ReleaseYear,
		ImagePath:    strings.TrimSpace(in.ImagePath),
	}, nil
}

// NormalizeItem validates in and returns the item to store.
func NormalizeItem(in ItemInput) (*core.Item, error) {
	errs := fieldErrors{}
	name := sanitize.Line(in.Name)
	if name == "" {
		errs.add("name", "is required")
	}
	if in.ConsoleID <= 0 {
		errs.add("console_id", "is required")
	}
	kind, err := core.ParseItemKind(in.Kind)
	if err != nil {
		errs.add("kind", err.Error())
	}
	checkPrice(errs, "price", &in.Price)
	checkPrice(errs, "good_price", in.GoodPrice)
	checkPrice(errs, "acceptable_price", in.AcceptablePrice)
	if in.Quantity < 0 {
		errs.add("quantity", "must not be negative")
	}
	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL != "" && !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		errs.add("image_url", "must be an http or https URL")
	}
	slug := slugFor(in.Slug, name)
	if slug == "" && name != "" {
		errs.add("slug", "must contain letters or digits")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return &core.Item{
		ConsoleID:       in.ConsoleID,
		Name:            name,
		Slug:            slug,
		Kind:            kind,
		Price:           in.Price,
		GoodPrice:       in.GoodPrice,
		AcceptablePrice: in.AcceptablePrice,
		Description:     sanitize.Text(in.Description),
		Quantity:        in.Quantity,
		ImageURL:        imageURL,
		Featured:        in.Featured,
	}, nil
}

func checkPrice(errs fieldErrors, field string, v *float64) {
	if v == nil {
		return
	}
	switch {
	case math.IsNaN(*v) || math.IsInf(*v, 0):
		errs.add(field, "must be a number")
	case *v < 0:
		errs.add(field, "must not be negative")
	}
}

func slugFor(slug, name string) string {
	if s := core.Slugify(slug); s != "" {
		return s
	}
	return core.Slugify(name)
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory validates and stores a category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*core.Category, error) {
	c, err := NormalizeCategory(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCategory validates and overwrites category id.
func (s *Service) UpdateCategory(ctx context.Context, id int64, in CategoryInput) (*core.Category, error) {
	c, err := NormalizeCategory(in)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.CreatedAt = existing.CreatedAt
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCategory removes a category without consoles.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.store.DeleteCategory(ctx, id)
}

// ListConsoles returns consoles, optionally within one category.
func (s *Service) ListConsoles(ctx context.Context, categoryID int64) ([]core.Console, error) {
	return s.store.ListConsoles(ctx, store.ConsoleFilter{CategoryID: categoryID})
}

// CreateConsole validates and stores a console.
func (s *Service) CreateConsole(ctx context.Context, in ConsoleInput) (*core.Console, error) {
	c, err := NormalizeConsole(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateConsole(ctx, c); err != nil {
		return nil, err
	}
	return s.store.GetConsole(ctx, c.ID)
}

// UpdateConsole validates and overwrites console id.
func (s *Service) UpdateConsole(ctx context.Context, id int64, in ConsoleInput) (*core.Console, error) {
	c, err := NormalizeConsole(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetConsole(ctx, id); err != nil {
		return nil, err
	}
	c.ID = id
	if err := s.store.UpdateConsole(ctx, c); err != nil {
		return nil, err
	}
	return s.store.GetConsole(ctx, id)
}

// DeleteConsole removes a console without items.
func (s *Service) DeleteConsole(ctx context.Context, id int64) error {
	return s.store.DeleteConsole(ctx, id)
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, id int64) (*core.Item, error) {
	return s.store.GetItem(ctx, id)
}

// CreateItem validates and stores an item.
func (s *Service) CreateItem(ctx context.Context, in ItemInput) (*core.Item, error) {
	item, err := NormalizeItem(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return s.store.GetItem(ctx, item.ID)
}

// UpdateItem validates and overwrites item id. The local image path is kept
// unless the remote URL changed.
func (s *Service) UpdateItem(ctx context.Context, id int64, in ItemInput) (*core.Item, error) {
	item, err := NormalizeItem(in)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item.ID = id
	if item.ImageURL == existing.ImageURL {
		item.ImagePath = existing.ImagePath
	}
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return s.store.GetItem(ctx, id)
}

// DeleteItem removes an item.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	return s.store.DeleteItem(ctx, id)
}

// ListItems returns a page of items for the admin listing.
func (s *Service) ListItems(ctx context.Context, q store.ItemQuery) ([]core.Item, int, error) {
	if q.Limit <= 0 || q.Limit > s.opts.MaxPageSize {
		q.Limit = s.opts.MaxPageSize
	}
	return s.store.ListItems(ctx, q)
}

// DuplicateReport groups every stored item by normalized name and console,
// sorted by key.
func (s *Service) DuplicateReport(ctx context.Context) ([]dedupe.DuplicateGroup, error) {
	records, err := s.store.ListInventoryRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	groups, err := s.grouper.Group(records)
	if err != nil {
		return nil, err
	}
	dedupe.SortGroups(groups)

	metrics.SetDuplicateGroups(len(groups))
	observability.Debug("Duplicate report built",
		zap.Int("records", len(records)),
		zap.Int("groups", len(groups)))
	return groups, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
