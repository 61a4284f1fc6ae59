package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/store"
	"github.com/retrostock/retrostock/internal/metrics"
	"github.com/retrostock/retrostock/internal/observability"
)

// Mode selects how imported rows meet existing inventory.
type Mode string

const (
	// ModeAppend adds rows next to existing items; invalid rows are skipped.
	ModeAppend Mode = "append"
	// ModeReplace swaps out every item of the consoles named in the file.
	// Any invalid row aborts the whole import.
	ModeReplace Mode = "replace"
)

// ParseMode accepts "append" (also the empty string) or "replace".
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("unknown import mode %q (use append or replace)", value)
	}
}

// DefaultCategory receives consoles created during import.
const DefaultCategory = "Uncategorized"

// Options control an import run.
type Options struct {
	Mode            Mode
	CreateConsoles  bool
	DefaultCategory string
	DryRun          bool
}

// Summary reports what an import did, or would do on a dry run.
type Summary struct {
	Mode            Mode       `json:"mode"`
	DryRun          bool       `json:"dry_run"`
	Rows            int        `json:"rows"`
	Imported        int        `json:"imported"`
	Skipped         int        `json:"skipped"`
	Replaced        int64      `json:"replaced"`
	ConsolesCreated []string   `json:"consoles_created"`
	Errors          []RowError `json:"errors"`
}

// ErrAborted is returned by a replace-mode run that found invalid rows.
// The summary still lists every row error.
var ErrAborted = errors.New("import aborted: replace mode requires every row to be valid")

// Store is the persistence surface an import needs.
type Store interface {
	FindConsoleByName(ctx context.Context, name string) (*core.Console, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*core.Category, error)
	CreateCategory(ctx context.Context, c *core.Category) error
	CreateConsole(ctx context.Context, c *core.Console) error
	InsertItems(ctx context.Context, items []core.Item) (int, error)
	ReplaceItems(ctx context.Context, consoleIDs []int64, items []core.Item) (int64, error)
}

type pendingItem struct {
	consoleKey string
	item       *core.Item
}

// Run validates rows, resolves their consoles and writes the valid ones.
// Nothing is written when DryRun is set or when a replace run is aborted.
func Run(ctx context.Context, st Store, rows []Row, opts Options) (*Summary, error) {
	if opts.Mode == "" {
		opts.Mode = ModeAppend
	}
	if strings.TrimSpace(opts.DefaultCategory) == "" {
		opts.DefaultCategory = DefaultCategory
	}

	summary := &Summary{
		Mode:            opts.Mode,
		DryRun:          opts.DryRun,
		Rows:            len(rows),
		ConsolesCreated: []string{},
		Errors:          []RowError{},
	}

	consoles := make(map[string]*core.Console)
	var missing []string
	pending := make([]pendingItem, 0, len(rows))

	for i := range rows {
		row := &rows[i]
		if len(row.Problems) > 0 {
			summary.Errors = append(summary.Errors, row.Problems...)
			continue
		}

		key := consoleKey(row.Console)
		console, seen := consoles[key]
		if !seen {
			found, err := st.FindConsoleByName(ctx, row.Console)
			switch {
			case err == nil:
				console = found
			case errors.Is(err, store.ErrNotFound):
				if opts.CreateConsoles {
					missing = append(missing, row.Console)
				}
			default:
				return nil, fmt.Errorf("resolve console %q: %w", row.Console, err)
			}
			consoles[key] = console
		}
		if console == nil && !opts.CreateConsoles {
			summary.Errors = append(summary.Errors, RowError{
				Row:    row.Number,
				Field:  ColConsole,
				Reason: fmt.Sprintf("unknown console %q", row.Console),
			})
			continue
		}

		item, rowErrs := normalizeRow(row)
		if len(rowErrs) > 0 {
			summary.Errors = append(summary.Errors, rowErrs...)
			continue
		}
		pending = append(pending, pendingItem{consoleKey: key, item: item})
	}

	summary.Skipped = summary.Rows - len(pending)
	sort.Strings(missing)
	summary.ConsolesCreated = append(summary.ConsolesCreated, missing...)

	if opts.Mode == ModeReplace && len(summary.Errors) > 0 {
		summary.Skipped = summary.Rows
		metrics.RecordImportRows(string(opts.Mode), "aborted", summary.Rows)
		observability.Warn("Replace import aborted",
			zap.Int("rows", summary.Rows),
			zap.Int("errors", len(summary.Errors)))
		return summary, ErrAborted
	}

	if opts.DryRun {
		summary.Imported = len(pending)
		return summary, nil
	}

	if len(missing) > 0 {
		category, err := ensureCategory(ctx, st, opts.DefaultCategory)
		if err != nil {
			return nil, err
		}
		for _, name := range missing {
			console := &core.Console{CategoryID: category.ID, Name: name, Slug: core.Slugify(name)}
			if err := st.CreateConsole(ctx, console); err != nil {
				return nil, fmt.Errorf("create console %q: %w", name, err)
			}
			consoles[consoleKey(name)] = console
		}
	}

	items := make([]core.Item, 0, len(pending))
	scope := make(map[int64]struct{})
	for _, p := range pending {
		console := consoles[p.consoleKey]
		p.item.ConsoleID = console.ID
		scope[console.ID] = struct{}{}
		items = append(items, *p.item)
	}

	switch opts.Mode {
	case ModeReplace:
		ids := make([]int64, 0, len(scope))
		for id := range scope {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		deleted, err := st.ReplaceItems(ctx, ids, items)
		if err != nil {
			return nil, fmt.Errorf("replace items: %w", err)
		}
		summary.Replaced = deleted
		summary.Imported = len(items)
	default:
		inserted, err := st.InsertItems(ctx, items)
		if err != nil {
			return nil, fmt.Errorf("insert items: %w", err)
		}
		summary.Imported = inserted
	}

	metrics.RecordImportRows(string(opts.Mode), "imported", summary.Imported)
	metrics.RecordImportRows(string(opts.Mode), "skipped", summary.Skipped)
	observability.Info("Import finished",
		zap.String("mode", string(opts.Mode)),
		zap.Int("rows", summary.Rows),
		zap.Int("imported", summary.Imported),
		zap.Int("skipped", summary.Skipped),
		zap.Int64("replaced", summary.Replaced),
		zap.Int("consoles_created", len(summary.ConsolesCreated)))
	return summary, nil
}

// normalizeRow runs the catalog item rules over a row. The console is
// resolved separately, so a placeholder ID satisfies the console check.
func normalizeRow(row *Row) (*core.Item, []RowError) {
	item, err := catalog.NormalizeItem(catalog.ItemInput{
		ConsoleID:       1,
		Name:            row.Name,
		Kind:            row.Kind,
		Price:           row.Price,
		GoodPrice:       row.GoodPrice,
		AcceptablePrice: row.AcceptablePrice,
		Description:     row.Description,
		Quantity:        row.Quantity,
		ImageURL:        row.ImageURL,
		Featured:        row.Featured,
	})
	if err == nil {
		item.ConsoleID = 0
		return item, nil
	}

	var vErr *catalog.ValidationError
	if !errors.As(err, &vErr) {
		return nil, []RowError{{Row: row.Number, Reason: err.Error()}}
	}
	fields := make([]string, 0, len(vErr.Fields))
	for field := range vErr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	out := make([]RowError, 0, len(fields))
	for _, field := range fields {
		out = append(out, RowError{Row: row.Number, Field: field, Reason: vErr.Fields[field]})
	}
	return nil, out
}

func ensureCategory(ctx context.Context, st Store, name string) (*core.Category, error) {
	slug := core.Slugify(name)
	category, err := st.GetCategoryBySlug(ctx, slug)
	if err == nil {
		return category, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load category %q: %w", name, err)
	}
	category = &core.Category{Name: strings.TrimSpace(name), Slug: slug}
	if err := st.CreateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("create category %q: %w", name, err)
	}
	return category, nil
}

func consoleKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
