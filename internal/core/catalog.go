package core

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ItemKind classifies inventory items.
type ItemKind string

const (
	KindGame       ItemKind = "game"
	KindConsole    ItemKind = "console"
	KindController ItemKind = "controller"
	KindAccessory  ItemKind = "accessory"
)

// ItemKinds lists every supported kind in display order.
var ItemKinds = []ItemKind{KindGame, KindConsole, KindController, KindAccessory}

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	for _, kind := range ItemKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ParseItemKind normalizes a kind string. Empty input defaults to game.
func ParseItemKind(value string) (ItemKind, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return KindGame, nil
	}
	singular := value
	if strings.HasSuffix(singular, "ies") {
		singular = strings.TrimSuffix(singular, "ies") + "y"
	}
	kind := ItemKind(strings.TrimSuffix(singular, "s"))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown item kind %q", value)
	}
	return kind, nil
}

// Category groups consoles on the storefront (e.g. Nintendo, Sega).
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Console is a platform items belong to.
type Console struct {
	ID           int64     `json:"id"`
	CategoryID   int64     `json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	ReleaseYear  int       `json:"release_year,omitempty"`
	ImagePath    string    `json:"image_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Item is a sellable inventory entry. GoodPrice and AcceptablePrice are the
// loose/game-only condition prices and are optional.
type Item struct {
	ID              int64     `json:"id"`
	ConsoleID       int64     `json:"console_id"`
	ConsoleName     string    `json:"console_name,omitempty"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Kind            ItemKind  `json:"kind"`
	Price           float64   `json:"price"`
	GoodPrice       *float64  `json:"good_price,omitempty"`
	AcceptablePrice *float64  `json:"acceptable_price,omitempty"`
	Description     string    `json:"description,omitempty"`
	Quantity        int       `json:"quantity"`
	ImageURL        string    `json:"image_url,omitempty"`
	ImagePath       string    `json:"image_path,omitempty"`
	Featured        bool      `json:"featured"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ContactMessage is a stored contact form submission.
type ContactMessage struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	ClientID  string    `json:"client_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// InventoryRecord is the flattened item view used by duplicate detection.
// ConsoleID zero means the console is only known by name.
type InventoryRecord struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	ConsoleID       int64    `json:"console_id,omitempty"`
	ConsoleName     string   `json:"console_name"`
	Price           float64  `json:"price"`
	GoodPrice       *float64 `json:"good_price,omitempty"`
	AcceptablePrice *float64 `json:"acceptable_price,omitempty"`
	Description     string   `json:"description,omitempty"`
}

// Slugify lowercases name and replaces every run of non-alphanumerics with
// a single dash.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Float64 returns a pointer to v, for optional price fields.
func Float64(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
