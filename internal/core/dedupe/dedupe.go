// Package dedupe finds inventory records that describe the same catalog
// item and classifies how each one is priced.
//
// Two records are duplicates when their normalized names match and they
// belong to the same console. Output preserves first-seen order; callers
// that need a stable report order use SortGroups.
package dedupe

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/retrostock/retrostock/internal/core"
)

// DefaultClassicConsoles are the legacy systems priced loose-only.
var DefaultClassicConsoles = []string{"NES", "SNES", "N64"}

const gameOnlyPhrase = "game only"

// ClassifiedRecord is an input record plus its derived pricing variant.
type ClassifiedRecord struct {
	core.InventoryRecord
	ShowsCompleteInBox bool `json:"shows_complete_in_box"`
	ShowsGameOnly      bool `json:"shows_game_only"`
}

// DuplicateGroup holds two or more records sharing a key.
type DuplicateGroup struct {
	Key     string             `json:"key"`
	Members []ClassifiedRecord `json:"members"`
}

// ValidationError reports the first malformed record of a batch.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: invalid %s: %s", e.Index, e.Field, e.Reason)
}

// Grouper groups records using a configured classic-console set.
type Grouper struct {
	classic map[string]struct{}
}

// NewGrouper builds a grouper. A nil or empty list falls back to
// DefaultClassicConsoles.
func NewGrouper(classicConsoles []string) *Grouper {
	if len(classicConsoles) == 0 {
		classicConsoles = DefaultClassicConsoles
	}
	classic := make(map[string]struct{}, len(classicConsoles))
	for _, name := range classicConsoles {
		name = normalizeConsole(name)
		if name == "" {
			continue
		}
		classic[name] = struct{}{}
	}
	return &Grouper{classic: classic}
}

var defaultGrouper = NewGrouper(nil)

// Group runs the default grouper over records.
func Group(records []core.InventoryRecord) ([]DuplicateGroup, error) {
	return defaultGrouper.Group(records)
}

// Group validates every record, then returns the groups with more than one
// member in first-seen key order. Any invalid record fails the whole call.
func (g *Grouper) Group(records []core.InventoryRecord) ([]DuplicateGroup, error) {
	for i := range records {
		if err := validate(i, records[i]); err != nil {
			return nil, err
		}
	}

	buckets := make(map[string][]int, len(records))
	order := make([]string, 0, len(records))
	for i, rec := range records {
		key := Key(rec)
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], i)
	}

	groups := make([]DuplicateGroup, 0)
	for _, key := range order {
		indexes := buckets[key]
		if len(indexes) < 2 {
			continue
		}
		members := make([]ClassifiedRecord, 0, len(indexes))
		for _, idx := range indexes {
			members = append(members, g.Classify(records[idx]))
		}
		groups = append(groups, DuplicateGroup{Key: key, Members: members})
	}
	return groups, nil
}

// Classify derives the pricing variant flags for one record.
func (g *Grouper) Classify(rec core.InventoryRecord) ClassifiedRecord {
	isClassic := g.IsClassic(rec.ConsoleName)
	hasCompleteInBoxPrice := !isClassic && rec.Price > 0
	hasGameOnlyPrice := positive(rec.GoodPrice) || positive(rec.AcceptablePrice)
	hasGameOnlyInDescription := strings.Contains(strings.ToLower(rec.Description), gameOnlyPhrase)

	return ClassifiedRecord{
		InventoryRecord:    rec,
		ShowsCompleteInBox: hasCompleteInBoxPrice && !hasGameOnlyPrice && !hasGameOnlyInDescription,
		ShowsGameOnly:      isClassic || hasGameOnlyPrice || hasGameOnlyInDescription,
	}
}

// IsClassic reports whether consoleName is in the classic set
// (case-insensitive, surrounding whitespace ignored).
func (g *Grouper) IsClassic(consoleName string) bool {
	_, ok := g.classic[normalizeConsole(consoleName)]
	return ok
}

// ClassicConsoles returns the configured set, sorted.
func (g *Grouper) ClassicConsoles() []string {
	out := make([]string, 0, len(g.classic))
	for name := range g.classic {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Key is the grouping key: normalized name plus console identity. The
// console ID wins when set; otherwise the normalized console name is used.
func Key(rec core.InventoryRecord) string {
	console := "name:" + NormalizeName(rec.ConsoleName)
	if rec.ConsoleID != 0 {
		console = "id:" + strconv.FormatInt(rec.ConsoleID, 10)
	}
	return NormalizeName(rec.Name) + "|" + console
}

// NormalizeName lowercases, trims and collapses whitespace runs.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// SortGroups orders groups by key, in place.
func SortGroups(groups []DuplicateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Key < groups[j].Key
	})
}

func validate(index int, rec core.InventoryRecord) error {
	if NormalizeName(rec.Name) == "" {
		return &ValidationError{Field: "name", Index: index, Reason: "is required"}
	}
	if rec.ConsoleID == 0 && NormalizeName(rec.ConsoleName) == "" {
		return &ValidationError{Field: "console", Index: index, Reason: "is required"}
	}
	if reason := badPrice(rec.Price); reason != "" {
		return &ValidationError{Field: "price", Index: index, Reason: reason}
	}
	if rec.GoodPrice != nil {
		if reason := badPrice(*rec.GoodPrice); reason != "" {
			return &ValidationError{Field: "good_price", Index: index, Reason: reason}
		}
	}
	if rec.AcceptablePrice != nil {
		if reason := badPrice(*rec.AcceptablePrice); reason != "" {
			return &ValidationError{Field: "acceptable_price", Index: index, Reason: reason}
		}
	}
	return nil
}

func badPrice(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return "must be a finite number"
	case v < 0:
		return "must not be negative"
	default:
		return ""
	}
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

func normalizeConsole(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
