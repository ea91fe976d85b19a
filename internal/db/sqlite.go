package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at file, creating its directory and the
// schema when missing. ":memory:" is accepted for tests.
func InitDB(file string) (*sql.DB, error) {
	if file != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, err
	}

	// an in-memory database lives per connection
	if file == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err = createSubscriptionsTable(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create subscriptions table: %v", err)
	}

	return db, nil
}

func createSubscriptionsTable(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS subscriptions (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL,
		mailbox_name TEXT NOT NULL,
		subscribed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, mailbox_name)
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_username ON subscriptions(username);
	`
	_, err := db.Exec(schema)
	return err
}
