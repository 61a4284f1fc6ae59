package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/dedupe"
	"github.com/retrostock/retrostock/internal/core/importer"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatDuplicates renders one table row per group member.
func (f *TableFormatter) FormatDuplicates(groups []dedupe.DuplicateGroup) (string, error) {
	if len(groups) == 0 {
		return "No duplicate items found.", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Group", "ID", "Name", "Console", "Price", "Good", "Acceptable", "Variant"})

	members := 0
	for i, group := range groups {
		if i > 0 {
			t.AppendSeparator()
		}
		for _, m := range group.Members {
			t.AppendRow(table.Row{
				i + 1,
				m.ID,
				m.Name,
				m.ConsoleName,
				formatPrice(m.Price),
				formatOptionalPrice(m.GoodPrice),
				formatOptionalPrice(m.AcceptablePrice),
				variantLabel(m),
			})
			members++
		}
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", fmt.Sprintf("%d groups, %d items", len(groups), members)})
	return t.Render(), nil
}

// FormatItems renders an item listing.
func (f *TableFormatter) FormatItems(items []core.Item, total int) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Name", "Console", "Kind", "Price", "Stock", "Featured"})

	for _, item := range items {
		featured := ""
		if item.Featured {
			featured = "yes"
		}
		t.AppendRow(table.Row{
			item.ID,
			truncate(item.Name, 48),
			item.ConsoleName,
			string(item.Kind),
			formatPrice(item.Price),
			stockLabel(item),
			featured,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d of %d", len(items), total)})
	return t.Render(), nil
}

// FormatImportSummary renders counts followed by any row errors.
func (f *TableFormatter) FormatImportSummary(summary *importer.Summary) (string, error) {
	if summary == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Mode", "Rows", "Imported", "Skipped", "Replaced", "New consoles"})
	mode := string(summary.Mode)
	if summary.DryRun {
		mode += " (dry run)"
	}
	t.AppendRow(table.Row{
		mode,
		summary.Rows,
		summary.Imported,
		summary.Skipped,
		summary.Replaced,
		strings.Join(summary.ConsolesCreated, ", "),
	})
	rendered := t.Render()

	if len(summary.Errors) == 0 {
		return rendered, nil
	}

	errs := table.NewWriter()
	errs.SetStyle(table.StyleRounded)
	errs.AppendHeader(table.Row{"Row", "Field", "Problem"})
	for _, e := range summary.Errors {
		errs.AppendRow(table.Row{e.Row, e.Field, e.Reason})
	}
	return rendered + "\n" + errs.Render(), nil
}
