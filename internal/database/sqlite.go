// Package database persists the portfolio in SQLite.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Open opens the database at path, creating the file and schema if needed.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// Writes go through one transaction at a time.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL,
		initial_capital TEXT NOT NULL,
		available_funds TEXT NOT NULL,
		net_worth TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS positions (
		ticker TEXT PRIMARY KEY,
		shares INTEGER NOT NULL CHECK (shares > 0),
		avg_cost TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS trades (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		ticker TEXT NOT NULL,
		side TEXT NOT NULL,
		kind TEXT NOT NULL,
		shares INTEGER NOT NULL,
		price TEXT NOT NULL,
		commission TEXT NOT NULL,
		realized TEXT NOT NULL,
		executed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS watchlist (
		seq INTEGER PRIMARY KEY,
		ticker TEXT NOT NULL UNIQUE
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}
