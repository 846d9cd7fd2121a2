// Package local implements the persisted fallback store: a single SQLite
// file holding one JSON-serialized sequence of records per collection,
// keyed by collection name, plus a handful of preference keys. It enforces
// the same conflict rules as the remote gateway so callers cannot tell which
// store served them.
package local

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// Keys of the persisted mapping. Each collection key holds a JSON array of
// records; a single key write is the atomicity unit.
const (
	KeySchedules = "work_schedules"
	KeyProfiles  = "user_profiles"
	KeyTodos     = "todos"
	KeyOutbox    = "outbox"

	KeyLastViewedDate = "last_viewed_date"
	KeyLanguage       = "language"
	KeyTheme          = "theme"
	KeySelectedMember = "selected_member"
)

const kvSchemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

func pragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
}

// openDatabase opens (and initializes) the fallback database file.
func openDatabase(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create fallback directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback database: %w", err)
	}

	for _, pragma := range pragmaStatements() {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(kvSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize fallback schema: %w", err)
	}

	return db, nil
}

// DefaultPath returns the fallback database location.
// Priority: $XDG_DATA_HOME/shiftboard/fallback.db, then
// ~/.local/share/shiftboard/fallback.db.
func DefaultPath() (string, error) {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, "shiftboard", "fallback.db"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "shiftboard", "fallback.db"), nil
}
