package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/retrostock/retrostock/internal/core"
)

// CreateContactMessage stores a submission and fills its ID and timestamp.
func (s *Store) CreateContactMessage(ctx context.Context, msg *core.ContactMessage) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if msg == nil {
		return errors.New("contact message is required")
	}

	now := time.Now().UTC().Unix()
	row := s.queryRow(ctx, s.DB, `
		INSERT INTO contact_messages (name, email, subject, message, client_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		RETURNING id
	`, msg.Name, msg.Email, msg.Subject, msg.Message, msg.ClientID, now)
	if err := row.Scan(&msg.ID); err != nil {
		return fmt.Errorf("create contact message: %w", err)
	}
	msg.CreatedAt = fromUnix(now)
	msg.Read = false
	return nil
}

// ListContactMessages returns messages newest first. A limit of zero means
// no limit.
func (s *Store) ListContactMessages(ctx context.Context, unreadOnly bool, limit int) ([]core.ContactMessage, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, name, email, subject, message, client_id, is_read, created_at FROM contact_messages`
	var args []any
	if unreadOnly {
		query += ` WHERE is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	out := make([]core.ContactMessage, 0)
	for rows.Next() {
		var (
			msg       core.ContactMessage
			read      int
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Subject, &msg.Message, &msg.ClientID,
			&read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan contact message: %w", err)
		}
		msg.Read = read != 0
		msg.CreatedAt = fromUnix(createdAt)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contact messages: %w", err)
	}
	return out, nil
}

// MarkContactMessageRead flags a message as read.
func (s *Store) MarkContactMessageRead(ctx context.Context, id int64) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.DB, `UPDATE contact_messages SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark contact message read: %w", err)
	}
	return expectAffected(res, "contact message")
}
