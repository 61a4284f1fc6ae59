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

const consoleSelect = `
	SELECT c.id, c.category_id, cat.name, c.name, c.slug, c.manufacturer, c.release_year,
		c.image_path, c.created_at, c.updated_at
	FROM consoles c
	JOIN categories cat ON cat.id = c.category_id`

// ConsoleFilter narrows ListConsoles. Zero values match everything.
type ConsoleFilter struct {
	CategoryID int64
}

// ListConsoles returns consoles ordered by name.
func (s *Store) ListConsoles(ctx context.Context, filter ConsoleFilter) ([]core.Console, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	query := consoleSelect
	var args []any
	if filter.CategoryID != 0 {
		query += ` WHERE c.category_id = ?`
		args = append(args, filter.CategoryID)
	}
	query += ` ORDER BY c.name`

	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consoles: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []core.Console
	for rows.Next() {
		console, err := scanConsole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan console: %w", err)
		}
		out = append(out, *console)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list consoles: %w", err)
	}
	return out, nil
}

// GetConsole loads a console by ID.
func (s *Store) GetConsole(ctx context.Context, id int64) (*core.Console, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	return oneConsole(s.queryRow(ctx, s.DB, consoleSelect+` WHERE c.id = ?`, id))
}

// GetConsoleBySlug loads a console by slug.
func (s *Store) GetConsoleBySlug(ctx context.Context, slug string) (*core.Console, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	return oneConsole(s.queryRow(ctx, s.DB, consoleSelect+` WHERE c.slug = ?`, slug))
}

// FindConsoleByName matches a console name case-insensitively.
func (s *Store) FindConsoleByName(ctx context.Context, name string) (*core.Console, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	return oneConsole(s.queryRow(ctx, s.DB, consoleSelect+` WHERE LOWER(c.name) = ? ORDER BY c.id LIMIT 1`, name))
}

// CreateConsole inserts c and fills its ID and timestamps.
func (s *Store) CreateConsole(ctx context.Context, c *core.Console) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.New("console is required")
	}
	return s.createConsole(ctx, s.DB, c)
}

func (s *Store) createConsole(ctx context.Context, q queryer, c *core.Console) error {
	now := time.Now().UTC().Unix()

	if err := s.requireRow(ctx, q, "categories", c.CategoryID); err != nil {
		return err
	}

	row := s.queryRow(ctx, q, `
		INSERT INTO consoles (category_id, name, slug, manufacturer, release_year, image_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, c.CategoryID, c.Name, c.Slug, c.Manufacturer, c.ReleaseYear, c.ImagePath, now, now)
	if err := row.Scan(&c.ID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("console slug %q: %w", c.Slug, ErrConflict)
		}
		return fmt.Errorf("create console: %w", err)
	}
	c.CreatedAt = fromUnix(now)
	c.UpdatedAt = c.CreatedAt
	return nil
}

// UpdateConsole overwrites the mutable fields of an existing console.
func (s *Store) UpdateConsole(ctx context.Context, c *core.Console) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.New("console is required")
	}

	if err := s.requireRow(ctx, s.DB, "categories", c.CategoryID); err != nil {
		return err
	}

	now := time.Now().UTC().Unix()
	res, err := s.exec(ctx, s.DB, `
		UPDATE consoles
		SET category_id = ?, name = ?, slug = ?, manufacturer = ?, release_year = ?, image_path = ?, updated_at = ?
		WHERE id = ?
	`, c.CategoryID, c.Name, c.Slug, c.Manufacturer, c.ReleaseYear, c.ImagePath, now, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("console slug %q: %w", c.Slug, ErrConflict)
		}
		return fmt.Errorf("update console: %w", err)
	}
	if err := expectAffected(res, "console"); err != nil {
		return err
	}
	c.UpdatedAt = fromUnix(now)
	return nil
}

// DeleteConsole removes a console with no items.
func (s *Store) DeleteConsole(ctx context.Context, id int64) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var items int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM items WHERE console_id = ?`, id).Scan(&items); err != nil {
			return fmt.Errorf("count console items: %w", err)
		}
		if items > 0 {
			return fmt.Errorf("console %d has %d items: %w", id, items, ErrConflict)
		}

		res, err := s.exec(ctx, tx, `DELETE FROM consoles WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete console: %w", err)
		}
		return expectAffected(res, "console")
	})
}

func scanConsole(row rowScanner) (*core.Console, error) {
	var (
		c                    core.Console
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.CategoryID, &c.CategoryName, &c.Name, &c.Slug, &c.Manufacturer,
		&c.ReleaseYear, &c.ImagePath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return &c, nil
}

func oneConsole(row *sql.Row) (*core.Console, error) {
	c, err := scanConsole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("console: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("fetch console: %w", err)
	}
	return c, nil
}

// requireRow fails with ErrNotFound when table has no row with id. SQLite
// does not enforce the REFERENCES clauses without a per-connection pragma.
func (s *Store) requireRow(ctx context.Context, q queryer, table string, id int64) error {
	var n int
	if err := s.queryRow(ctx, q, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", strings.TrimSuffix(table, "s"), id, ErrNotFound)
	}
	return nil
}
