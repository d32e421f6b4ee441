// Package archive persists exploration runs to SQLite: the run row with
// its rendered summary, plus every discovered state, transition, and
// deduplicated violation. Content-addressed ids make archiving
// idempotent across retries and overlapping runs.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Archive is a durable store of exploration runs.
// Uses SQLite with WAL mode for concurrent read access.
type Archive struct {
	db *sql.DB
}

// Open creates or opens an archive database at the given path.
// Applies required pragmas and migrations automatically; safe to call
// multiple times against the same file.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Archive methods when available.
func (a *Archive) DB() *sql.DB {
	return a.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on
// user_version. The initial schema needs none; the version stamp is
// where future ones hook in.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version >= currentSchemaVersion {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// Counts reports the totals across all archived runs. Used by status
// output and tests.
func (a *Archive) Counts(ctx context.Context) (runs, states, transitions, violations int, err error) {
	tables := []struct {
		name string
		dst  *int
	}{
		{"runs", &runs},
		{"states", &states},
		{"transitions", &transitions},
		{"violations", &violations},
	}
	for _, table := range tables {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table.name)
		if err = a.db.QueryRowContext(ctx, query).Scan(table.dst); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("count %s: %w", table.name, err)
		}
	}
	return runs, states, transitions, violations, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (a *Archive) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := a.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
