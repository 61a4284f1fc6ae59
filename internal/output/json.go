package output

import (
	"encoding/json"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/dedupe"
	"github.com/retrostock/retrostock/internal/core/importer"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatDuplicates renders duplicate groups as a JSON array.
func (f *JSONFormatter) FormatDuplicates(groups []dedupe.DuplicateGroup) (string, error) {
	if groups == nil {
		groups = []dedupe.DuplicateGroup{}
	}
	return f.marshal(groups)
}

// FormatItems renders an item page as {"total": n, "items": [...]}.
func (f *JSONFormatter) FormatItems(items []core.Item, total int) (string, error) {
	if items == nil {
		items = []core.Item{}
	}
	return f.marshal(struct {
		Total int         `json:"total"`
		Items []core.Item `json:"items"`
	}{Total: total, Items: items})
}

// FormatImportSummary renders an import summary as JSON.
func (f *JSONFormatter) FormatImportSummary(summary *importer.Summary) (string, error) {
	if summary == nil {
		return "", nil
	}
	return f.marshal(summary)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
