package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/retrostock/retrostock/internal/core"
)

const categoryColumns = `id, name, slug, description, sort_order, created_at, updated_at`

// ListCategories returns categories in display order.
func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, s.DB, `SELECT `+categoryColumns+` FROM categories ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []core.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, *category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// GetCategory loads a category by ID.
func (s *Store) GetCategory(ctx context.Context, id int64) (*core.Category, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	row := s.queryRow(ctx, s.DB, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	return oneCategory(row)
}

// GetCategoryBySlug loads a category by slug.
func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (*core.Category, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	row := s.queryRow(ctx, s.DB, `SELECT `+categoryColumns+` FROM categories WHERE slug = ?`, slug)
	return oneCategory(row)
}

// CreateCategory inserts c and fills its ID and timestamps.
func (s *Store) CreateCategory(ctx context.Context, c *core.Category) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.New("category is required")
	}

	now := time.Now().UTC()
	row := s.queryRow(ctx, s.DB, `
		INSERT INTO categories (name, slug, description, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, c.Name, c.Slug, c.Description, c.SortOrder, now.Unix(), now.Unix())
	if err := row.Scan(&c.ID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category slug %q: %w", c.Slug, ErrConflict)
		}
		return fmt.Errorf("create category: %w", err)
	}
	c.CreatedAt = fromUnix(now.Unix())
	c.UpdatedAt = c.CreatedAt
	return nil
}

// UpdateCategory overwrites the mutable fields of an existing category.
func (s *Store) UpdateCategory(ctx context.Context, c *core.Category) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.New("category is required")
	}

	now := time.Now().UTC().Unix()
	res, err := s.exec(ctx, s.DB, `
		UPDATE categories SET name = ?, slug = ?, description = ?, sort_order = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, c.Slug, c.Description, c.SortOrder, now, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category slug %q: %w", c.Slug, ErrConflict)
		}
		return fmt.Errorf("update category: %w", err)
	}
	if err := expectAffected(res, "category"); err != nil {
		return err
	}
	c.UpdatedAt = fromUnix(now)
	return nil
}

// DeleteCategory removes a category with no consoles.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var consoles int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM consoles WHERE category_id = ?`, id).Scan(&consoles); err != nil {
			return fmt.Errorf("count category consoles: %w", err)
		}
		if consoles > 0 {
			return fmt.Errorf("category %d has %d consoles: %w", id, consoles, ErrConflict)
		}

		res, err := s.exec(ctx, tx, `DELETE FROM categories WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return expectAffected(res, "category")
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*core.Category, error) {
	var (
		c                    core.Category
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.SortOrder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return &c, nil
}

func oneCategory(row *sql.Row) (*core.Category, error) {
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("category: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("fetch category: %w", err)
	}
	return c, nil
}

func expectAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", entity, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return nil
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
