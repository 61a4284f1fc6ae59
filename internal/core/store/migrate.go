package store

import (
	"context"
	"fmt"
	"strings"
)

// Schema templates use {{id}} and {{real}} for the dialect-specific
// primary key and floating point column types. Timestamps are Unix seconds.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id {{id}},
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS consoles (
		id {{id}},
		category_id BIGINT NOT NULL REFERENCES categories(id),
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		manufacturer TEXT NOT NULL DEFAULT '',
		release_year INTEGER NOT NULL DEFAULT 0,
		image_path TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_consoles_category ON consoles(category_id);`,
	`CREATE TABLE IF NOT EXISTS items (
		id {{id}},
		console_id BIGINT NOT NULL REFERENCES consoles(id),
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'game',
		price {{real}} NOT NULL DEFAULT 0,
		good_price {{real}},
		acceptable_price {{real}},
		description TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		image_path TEXT NOT NULL DEFAULT '',
		featured INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_items_console ON items(console_id);`,
	`CREATE INDEX IF NOT EXISTS idx_items_featured ON items(featured);`,
	`CREATE TABLE IF NOT EXISTS contact_messages (
		id {{id}},
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_contact_messages_created ON contact_messages(created_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, s.dialectDDL(stmt)); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}

func (s *Store) dialectDDL(stmt string) string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	floatType := "REAL"
	if s.driver == driverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
		floatType = "DOUBLE PRECISION"
	}
	return strings.NewReplacer("{{id}}", id, "{{real}}", floatType).Replace(stmt)
}
