package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/retrostock/retrostock/internal/core"
)

const itemSelect = `
	SELECT i.id, i.console_id, c.name, i.name, i.slug, i.kind, i.price, i.good_price, i.acceptable_price,
		i.description, i.quantity, i.image_url, i.image_path, i.featured, i.created_at, i.updated_at
	FROM items i
	JOIN consoles c ON c.id = i.console_id`

// Item sort orders accepted by ItemQuery.Sort.
const (
	SortName      = "name"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
)

var itemOrderBy = map[string]string{
	SortName:      "i.name, i.id",
	SortPriceAsc:  "i.price, i.name, i.id",
	SortPriceDesc: "i.price DESC, i.name, i.id",
	SortNewest:    "i.created_at DESC, i.id DESC",
}

// ItemQuery filters ListItems. Zero values match everything; Limit zero
// means no limit.
type ItemQuery struct {
	ConsoleID  int64
	CategoryID int64
	Kind       core.ItemKind
	Search     string
	MinPrice   *float64
	MaxPrice   *float64
	Featured   *bool
	InStock    bool
	Sort       string
	Limit      int
	Offset     int
}

func (q ItemQuery) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.ConsoleID != 0 {
		clauses = append(clauses, "i.console_id = ?")
		args = append(args, q.ConsoleID)
	}
	if q.CategoryID != 0 {
		clauses = append(clauses, "c.category_id = ?")
		args = append(args, q.CategoryID)
	}
	if q.Kind != "" {
		clauses = append(clauses, "i.kind = ?")
		args = append(args, string(q.Kind))
	}
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		like := "%" + escapeLike(term) + "%"
		clauses = append(clauses, `(LOWER(i.name) LIKE ? ESCAPE '\' OR LOWER(i.description) LIKE ? ESCAPE '\' OR LOWER(c.name) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if q.MinPrice != nil {
		clauses = append(clauses, "i.price >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		clauses = append(clauses, "i.price <= ?")
		args = append(args, *q.MaxPrice)
	}
	if q.Featured != nil {
		clauses = append(clauses, "i.featured = ?")
		args = append(args, boolInt(*q.Featured))
	}
	if q.InStock {
		clauses = append(clauses, "i.quantity > 0")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListItems returns the matching page of items and the total match count.
func (s *Store) ListItems(ctx context.Context, q ItemQuery) ([]core.Item, int, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, 0, err
	}

	where, args := q.where()

	var total int
	countQuery := `SELECT COUNT(*) FROM items i JOIN consoles c ON c.id = i.console_id` + where
	if err := s.queryRow(ctx, s.DB, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	orderBy, ok := itemOrderBy[q.Sort]
	if !ok {
		orderBy = itemOrderBy[SortName]
	}
	query := itemSelect + where + " ORDER BY " + orderBy
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, max(q.Offset, 0))
	}

	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	items := make([]core.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	return items, total, nil
}

// GetItem loads an item by ID.
func (s *Store) GetItem(ctx context.Context, id int64) (*core.Item, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	item, err := scanItem(s.queryRow(ctx, s.DB, itemSelect+` WHERE i.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("fetch item: %w", err)
	}
	return item, nil
}

// CreateItem inserts item and fills its ID and timestamps.
func (s *Store) CreateItem(ctx context.Context, item *core.Item) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if item == nil {
		return errors.New("item is required")
	}
	if err := s.requireRow(ctx, s.DB, "consoles", item.ConsoleID); err != nil {
		return err
	}
	return s.insertItem(ctx, s.DB, item, time.Now().UTC().Unix())
}

// UpdateItem overwrites the mutable fields of an existing item.
func (s *Store) UpdateItem(ctx context.Context, item *core.Item) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if item == nil {
		return errors.New("item is required")
	}
	if err := s.requireRow(ctx, s.DB, "consoles", item.ConsoleID); err != nil {
		return err
	}

	now := time.Now().UTC().Unix()
	res, err := s.exec(ctx, s.DB, `
		UPDATE items
		SET console_id = ?, name = ?, slug = ?, kind = ?, price = ?, good_price = ?, acceptable_price = ?,
			description = ?, quantity = ?, image_url = ?, image_path = ?, featured = ?, updated_at = ?
		WHERE id = ?
	`, item.ConsoleID, item.Name, item.Slug, string(item.Kind), item.Price, nullFloat(item.GoodPrice),
		nullFloat(item.AcceptablePrice), item.Description, item.Quantity, item.ImageURL, item.ImagePath,
		boolInt(item.Featured), now, item.ID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if err := expectAffected(res, "item"); err != nil {
		return err
	}
	item.UpdatedAt = fromUnix(now)
	return nil
}

// DeleteItem removes an item.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.DB, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return expectAffected(res, "item")
}

// InsertItems inserts every item in one transaction. IDs are filled in.
func (s *Store) InsertItems(ctx context.Context, items []core.Item) (int, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	now := time.Now().UTC().Unix()
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insertAll(ctx, tx, items, now)
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// ReplaceItems deletes every item belonging to consoleIDs and inserts items,
// atomically. It returns the number of rows deleted.
func (s *Store) ReplaceItems(ctx context.Context, consoleIDs []int64, items []core.Item) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	var deleted int64
	now := time.Now().UTC().Unix()
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if len(consoleIDs) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(consoleIDs)), ",")
			args := make([]any, 0, len(consoleIDs))
			for _, id := range consoleIDs {
				args = append(args, id)
			}
			res, err := s.exec(ctx, tx, `DELETE FROM items WHERE console_id IN (`+placeholders+`)`, args...)
			if err != nil {
				return fmt.Errorf("delete replaced items: %w", err)
			}
			if deleted, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("delete replaced items: %w", err)
			}
		}
		return s.insertAll(ctx, tx, items, now)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Store) insertAll(ctx context.Context, tx *sql.Tx, items []core.Item, now int64) error {
	known := make(map[int64]bool)
	for i := range items {
		consoleID := items[i].ConsoleID
		if !known[consoleID] {
			if err := s.requireRow(ctx, tx, "consoles", consoleID); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			known[consoleID] = true
		}
		if err := s.insertItem(ctx, tx, &items[i], now); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) insertItem(ctx context.Context, q queryer, item *core.Item, now int64) error {
	if item.Kind == "" {
		item.Kind = core.KindGame
	}
	row := s.queryRow(ctx, q, `
		INSERT INTO items (console_id, name, slug, kind, price, good_price, acceptable_price, description,
			quantity, image_url, image_path, featured, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, item.ConsoleID, item.Name, item.Slug, string(item.Kind), item.Price, nullFloat(item.GoodPrice),
		nullFloat(item.AcceptablePrice), item.Description, item.Quantity, item.ImageURL, item.ImagePath,
		boolInt(item.Featured), now, now)
	if err := row.Scan(&item.ID); err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	item.CreatedAt = fromUnix(now)
	item.UpdatedAt = item.CreatedAt
	return nil
}

// ListInventoryRecords returns every item flattened for duplicate detection,
// in ID order.
func (s *Store) ListInventoryRecords(ctx context.Context) ([]core.InventoryRecord, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, s.DB, `
		SELECT i.id, i.name, i.console_id, c.name, i.price, i.good_price, i.acceptable_price, i.description
		FROM items i
		JOIN consoles c ON c.id = i.console_id
		ORDER BY i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list inventory records: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []core.InventoryRecord
	for rows.Next() {
		var (
			rec              core.InventoryRecord
			good, acceptable sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.ConsoleID, &rec.ConsoleName, &rec.Price,
			&good, &acceptable, &rec.Description); err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		rec.GoodPrice = floatPtr(good)
		rec.AcceptablePrice = floatPtr(acceptable)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list inventory records: %w", err)
	}
	return out, nil
}

// SetItemImage records the local media path for an item.
func (s *Store) SetItemImage(ctx context.Context, id int64, imagePath string) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.DB, `UPDATE items SET image_path = ?, updated_at = ? WHERE id = ?`,
		imagePath, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("set item image: %w", err)
	}
	return expectAffected(res, "item")
}

// ItemsMissingImages returns items with a remote image URL but no local copy.
func (s *Store) ItemsMissingImages(ctx context.Context, limit int) ([]core.Item, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	query := itemSelect + ` WHERE i.image_url <> '' AND i.image_path = '' ORDER BY i.id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items missing images: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []core.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items missing images: %w", err)
	}
	return out, nil
}

func scanItem(row rowScanner) (*core.Item, error) {
	var (
		item                 core.Item
		kind                 string
		good, acceptable     sql.NullFloat64
		featured             int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&item.ID, &item.ConsoleID, &item.ConsoleName, &item.Name, &item.Slug, &kind,
		&item.Price, &good, &acceptable, &item.Description, &item.Quantity, &item.ImageURL,
		&item.ImagePath, &featured, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.Kind = core.ItemKind(kind)
	item.GoodPrice = floatPtr(good)
	item.AcceptablePrice = floatPtr(acceptable)
	item.Featured = featured != 0
	item.CreatedAt = fromUnix(createdAt)
	item.UpdatedAt = fromUnix(updatedAt)
	return &item, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
