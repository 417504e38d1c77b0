// Package storage persists finbook state in two SQLite databases: one
// for identity and login history, one for categories and transactions.
// Schema lives in embedded migrations applied through golang-migrate.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"finbook/internal/core"

	_ "modernc.org/sqlite"
)

// dsn builds the connection string. Pragmas must ride in the DSN, not
// a one-off Exec: database/sql pools connections, and an Exec'd pragma
// reaches only whichever connection served it. WAL journaling lets
// aggregation reads run against a stable snapshot while a write is in
// flight; the busy timeout absorbs lock handoffs instead of surfacing
// them as SQLITE_BUSY.
func dsn(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=busy_timeout(10000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
}

func openDB(dbPath, migrationDir string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", core.ErrStoreUnavailable)
	}

	if err := runMigrations(dbPath, migrationDir); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. The modernc driver exposes these only through the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// storeErr normalizes driver errors at the repository boundary:
// missing rows become ErrNotFound, everything else is a persistence
// failure the caller must treat as fatal to the operation.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
}
