// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs no
// C toolchain. Use ":memory:" for an ephemeral database (tests); any other
// path is a file that is created on first open.
//
// The pattern is always:
//  1. sql.Open(driverName, dataSourceName) → creates a pool
//  2. db.QueryContext / db.ExecContext     → runs queries
//  3. rows.Scan(&field1, &field2)          → reads results into Go variables
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/closetmatrix/closet-matrix/internal/repository"
)

// compile-time check that *DB implements every storage capability
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/closet.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database (lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	// email and username are UNIQUE: the constraint, not the service's
	// lookup, is what guarantees uniqueness under concurrent registration.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			username              TEXT NOT NULL UNIQUE,
			email                 TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash         TEXT NOT NULL DEFAULT '',
			first_name            TEXT NOT NULL DEFAULT '',
			last_name             TEXT NOT NULL DEFAULT '',
			newsletter_subscribed INTEGER NOT NULL DEFAULT 0,
			is_active             INTEGER NOT NULL DEFAULT 1,
			last_login            DATETIME,
			created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id      INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			colors       TEXT NOT NULL DEFAULT '[]',
			size_tops    TEXT NOT NULL DEFAULT '',
			size_dresses TEXT NOT NULL DEFAULT '',
			size_bottoms TEXT NOT NULL DEFAULT '',
			size_shoes   TEXT NOT NULL DEFAULT '',
			style_tags   TEXT NOT NULL DEFAULT '[]',
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_preferences table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS login_attempts (
			id           TEXT PRIMARY KEY,
			email        TEXT NOT NULL COLLATE NOCASE,
			ip_address   TEXT NOT NULL DEFAULT '',
			success      INTEGER NOT NULL,
			attempted_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_login_attempts_email_time
			ON login_attempts(email, attempted_at);
	`)
	if err != nil {
		return fmt.Errorf("creating login_attempts table: %w", err)
	}

	return nil
}

// dsn appends per-connection pragmas: foreign keys (OFF by default in SQLite)
// and a busy timeout so concurrent writers wait for the lock instead of failing.
// A PRAGMA run with Exec would only reach whichever pooled connection served it.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, which users column caused it ("" when it cannot be told).
func uniqueViolation(err error) (string, bool) {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	// Extended codes carry the primary code in the low byte.
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return "", false
	}
	msg := se.Error()
	if !strings.Contains(msg, "UNIQUE") {
		return "", false
	}
	switch {
	case strings.Contains(msg, "users.email"):
		return "email", true
	case strings.Contains(msg, "users.username"):
		return "username", true
	}
	return "", true
}
