package output

import (
	"fmt"
	"strings"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/dedupe"
	"github.com/retrostock/retrostock/internal/core/importer"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders CLI reports.
type Formatter interface {
	FormatDuplicates(groups []dedupe.DuplicateGroup) (string, error)
	FormatItems(items []core.Item, total int) (string, error)
	FormatImportSummary(summary *importer.Summary) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func formatPrice(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func formatOptionalPrice(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatPrice(*v)
}

// variantLabel names the pricing variants a classified record shows.
func variantLabel(rec dedupe.ClassifiedRecord) string {
	var parts []string
	if rec.ShowsCompleteInBox {
		parts = append(parts, "CIB")
	}
	if rec.ShowsGameOnly {
		parts = append(parts, "game only")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func stockLabel(item core.Item) string {
	if item.Quantity <= 0 {
		return "out of stock"
	}
	return fmt.Sprintf("%d", item.Quantity)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
