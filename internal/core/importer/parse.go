// Package importer loads inventory spreadsheets (CSV or XLSX) into the
// catalog, either appending rows or replacing the items of every console
// the file mentions.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is a spreadsheet encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case, with or without a
// leading dot.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), ".")) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported import format %q (use csv or xlsx)", value)
	}
}

// FormatFromFilename picks the format from a file extension.
func FormatFromFilename(name string) (Format, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", fmt.Errorf("cannot detect import format of %q", name)
	}
	return ParseFormat(ext)
}

// Column names recognised in the header row.
const (
	ColName            = "name"
	ColConsole         = "console"
	ColPrice           = "price"
	ColGoodPrice       = "good_price"
	ColAcceptablePrice = "acceptable_price"
	ColDescription     = "description"
	ColQuantity        = "quantity"
	ColKind            = "kind"
	ColImageURL        = "image_url"
	ColFeatured        = "featured"
)

var requiredColumns = []string{ColName, ColConsole, ColPrice}

var columnAliases = map[string]string{
	"title":    ColName,
	"platform": ColConsole,
	"system":   ColConsole,
	"qty":      ColQuantity,
	"type":     ColKind,
	"image":    ColImageURL,
}

// RowError describes one invalid cell or row. Row numbers are 1-based and
// count the header, so they match what a spreadsheet shows.
type RowError struct {
	Row    int    `json:"row"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// Row is one parsed data row. Problems holds cell-level errors; such rows
// are never imported.
type Row struct {
	Number          int
	Name            string
	Console         string
	Price           float64
	GoodPrice       *float64
	AcceptablePrice *float64
	Description     string
	Quantity        int
	Kind            string
	ImageURL        string
	Featured        bool
	Problems        []RowError
}

func (r *Row) problem(field, reason string) {
	r.Problems = append(r.Problems, RowError{Row: r.Number, Field: field, Reason: reason})
}

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("import file is empty")

// Parse reads every data row of r. Header problems are returned as an error;
// cell problems are attached to their rows. Blank rows are skipped.
func Parse(r io.Reader, format Format) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatXLSX:
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	columns, err := mapHeader(records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		if blank(record) {
			continue
		}
		rows = append(rows, parseRow(i+2, columns, record))
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close() // nolint:errcheck // read-only workbook

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// NormalizeHeader maps a header cell to its column name: BOM stripped,
// lowercased, spaces and dashes folded to underscores, aliases resolved.
func NormalizeHeader(cell string) string {
	cell = strings.TrimPrefix(cell, "\ufeff")
	cell = strings.ToLower(strings.TrimSpace(cell))
	cell = strings.Join(strings.FieldsFunc(cell, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	}), "_")
	if alias, ok := columnAliases[cell]; ok {
		return alias
	}
	return cell
}

func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, cell := range header {
		name := NormalizeHeader(cell)
		if name == "" {
			continue
		}
		if _, dup := columns[name]; dup {
			return nil, fmt.Errorf("duplicate column %q in header", name)
		}
		columns[name] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header is missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func parseRow(number int, columns map[string]int, record []string) Row {
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	row := Row{
		Number:      number,
		Name:        cell(ColName),
		Console:     cell(ColConsole),
		Description: cell(ColDescription),
		Kind:        cell(ColKind),
		ImageURL:    cell(ColImageURL),
		Quantity:    1,
	}

	if row.Name == "" {
		row.problem(ColName, "is required")
	}
	if row.Console == "" {
		row.problem(ColConsole, "is required")
	}

	if raw := cell(ColPrice); raw == "" {
		row.problem(ColPrice, "is required")
	} else if v, err := parsePrice(raw); err != nil {
		row.problem(ColPrice, err.Error())
	} else {
		row.Price = v
	}
	row.GoodPrice = optionalPrice(&row, ColGoodPrice, cell(ColGoodPrice))
	row.AcceptablePrice = optionalPrice(&row, ColAcceptablePrice, cell(ColAcceptablePrice))

	if raw := cell(ColQuantity); raw != "" {
		qty, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			row.problem(ColQuantity, fmt.Sprintf("%q is not a whole number", raw))
		case qty < 0:
			row.problem(ColQuantity, "must not be negative")
		default:
			row.Quantity = qty
		}
	}

	if raw := cell(ColFeatured); raw != "" {
		featured, err := parseFlag(raw)
		if err != nil {
			row.problem(ColFeatured, err.Error())
		}
		row.Featured = featured
	}
	return row
}

func optionalPrice(row *Row, field, raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := parsePrice(raw)
	if err != nil {
		row.problem(field, err.Error())
		return nil
	}
	return &v
}

// parsePrice accepts plain decimals plus a leading "$" and thousands commas.
func parsePrice(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(raw), "$"), ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if v < 0 {
		return 0, errors.New("must not be negative")
	}
	return v, nil
}

func parseFlag(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "x":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a yes/no value", raw)
	}
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
