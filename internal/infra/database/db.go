package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Registers the pure-Go "sqlite" driver
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Reads are short-lived; keep few idle connections around.
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewSQLiteConnection opens (or creates) the SQLite database at path, applies
// PRAGMAs and creates the schema. Used for single-host deployments and tests.
func NewSQLiteConnection(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite is a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return db, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id          INTEGER PRIMARY KEY,
	email       TEXT NOT NULL UNIQUE,
	username    TEXT NOT NULL DEFAULT '',
	first_name  TEXT,
	last_name   TEXT,
	is_active   INTEGER NOT NULL DEFAULT 1,
	is_admin    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS warranties (
	id              INTEGER PRIMARY KEY,
	user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	product_name    TEXT NOT NULL,
	purchase_date   TEXT NOT NULL,
	expiration_date TEXT,
	is_lifetime     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_warranties_expiration ON warranties(expiration_date);
CREATE TABLE IF NOT EXISTS user_preferences (
	user_id              INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	notification_channel TEXT NOT NULL DEFAULT 'email',
	email_frequency      TEXT NOT NULL DEFAULT 'daily',
	email_time           TEXT NOT NULL DEFAULT '09:00',
	email_timezone       TEXT NOT NULL DEFAULT 'UTC',
	push_frequency       TEXT NOT NULL DEFAULT 'daily',
	push_time            TEXT NOT NULL DEFAULT '09:00',
	push_timezone        TEXT NOT NULL DEFAULT 'UTC',
	expiring_soon_days   INTEGER NOT NULL DEFAULT 30,
	updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE TABLE IF NOT EXISTS site_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`
