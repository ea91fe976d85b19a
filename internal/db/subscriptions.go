package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Subscriptions persists the mailbox names a user subscribed to
type Subscriptions struct {
	db *sql.DB
}

// NewSubscriptions wraps an initialised database handle
func NewSubscriptions(db *sql.DB) *Subscriptions {
	return &Subscriptions{db: db}
}

// Subscribe records a subscription; subscribing twice is not an error
func (s *Subscriptions) Subscribe(ctx context.Context, username, mailboxName string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if strings.TrimSpace(mailboxName) == "" {
		return fmt.Errorf("mailbox name cannot be empty")
	}

	// INBOX is case-insensitive
	if strings.EqualFold(mailboxName, "INBOX") {
		mailboxName = "INBOX"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO subscriptions (username, mailbox_name)
		VALUES (?, ?)
	`, username, mailboxName)
	return err
}

// List returns the user's subscriptions ordered by name
func (s *Subscriptions) List(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mailbox_name
		FROM subscriptions
		WHERE username = ?
		ORDER BY mailbox_name
	`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []string
	for rows.Next() {
		var mailboxName string
		if err := rows.Scan(&mailboxName); err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, mailboxName)
	}

	return subscriptions, rows.Err()
}

