// Package db provides the SQLite connection and schema for the run ledger.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Sequence runs - append-only history, never read back to resume work
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sequence_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			result TEXT NOT NULL,
			steps INTEGER NOT NULL,
			fields TEXT,
			received_at INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_kind_started ON sequence_runs(kind, started_at);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON sequence_runs(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create sequence_runs table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
