package output

import (
	"fmt"
	"strings"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/dedupe"
	"github.com/retrostock/retrostock/internal/core/importer"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatDuplicates renders one section per duplicate group.
func (f *MarkdownFormatter) FormatDuplicates(groups []dedupe.DuplicateGroup) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Duplicate items\n\n")
	if len(groups) == 0 {
		sb.WriteString("No duplicate items found.\n")
		return sb.String(), nil
	}

	for _, group := range groups {
		title := group.Key
		if len(group.Members) > 0 {
			title = fmt.Sprintf("%s (%s)", group.Members[0].Name, group.Members[0].ConsoleName)
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", escapeMarkdownCell(title)))
		sb.WriteString("| ID | Name | Price | Good | Acceptable | Variant |\n")
		sb.WriteString("|----|------|-------|------|------------|---------|\n")
		for _, m := range group.Members {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
				m.ID,
				escapeMarkdownCell(m.Name),
				formatPrice(m.Price),
				formatOptionalPrice(m.GoodPrice),
				formatOptionalPrice(m.AcceptablePrice),
				variantLabel(m),
			))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("**Groups**: %d\n", len(groups)))
	return sb.String(), nil
}

// FormatItems renders an item listing.
func (f *MarkdownFormatter) FormatItems(items []core.Item, total int) (string, error) {
	var sb strings.Builder
	sb.WriteString("| ID | Name | Console | Kind | Price | Stock |\n")
	sb.WriteString("|----|------|---------|------|-------|-------|\n")
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
			item.ID,
			escapeMarkdownCell(item.Name),
			escapeMarkdownCell(item.ConsoleName),
			item.Kind,
			formatPrice(item.Price),
			stockLabel(item),
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Showing**: %d of %d\n", len(items), total))
	return sb.String(), nil
}

// FormatImportSummary renders import counts and row errors.
func (f *MarkdownFormatter) FormatImportSummary(summary *importer.Summary) (string, error) {
	if summary == nil {
		return "", nil
	}

	var sb strings.Builder
	title := "Import"
	if summary.DryRun {
		title += " (dry run)"
	}
	sb.WriteString(fmt.Sprintf("## %s: %s\n\n", title, summary.Mode))
	sb.WriteString(fmt.Sprintf("- Rows: %d\n- Imported: %d\n- Skipped: %d\n", summary.Rows, summary.Imported, summary.Skipped))
	if summary.Mode == importer.ModeReplace {
		sb.WriteString(fmt.Sprintf("- Replaced: %d\n", summary.Replaced))
	}
	if len(summary.ConsolesCreated) > 0 {
		sb.WriteString(fmt.Sprintf("- New consoles: %s\n", escapeMarkdownCell(strings.Join(summary.ConsolesCreated, ", "))))
	}

	if len(summary.Errors) > 0 {
		sb.WriteString("\n| Row | Field | Problem |\n")
		sb.WriteString("|-----|-------|---------|\n")
		for _, e := range summary.Errors {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s |\n", e.Row, escapeMarkdownCell(e.Field), escapeMarkdownCell(e.Reason)))
		}
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
