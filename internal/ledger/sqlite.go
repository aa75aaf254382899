package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteLedger keeps processed IDs in a local SQLite database. It offers
// the same append-only contract as the flat file with cheaper startup on
// very large ledgers.
type SQLiteLedger struct {
	db   *sqlx.DB
	seen map[string]struct{}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_notifications (
	id        TEXT PRIMARY KEY,
	marked_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// OpenSQLiteLedger opens (or creates) the ledger database at dbPath,
// enables WAL mode, and loads the processed set.
func OpenSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}

	// WAL keeps the dashboard's reads cheap while a run is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	var ids []string
	if err := db.Select(&ids, "SELECT id FROM processed_notifications"); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading processed ids: %w", err)
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	return &SQLiteLedger{db: db, seen: seen}, nil
}

// Contains reports whether id has already been processed.
func (l *SQLiteLedger) Contains(id string) bool {
	_, ok := l.seen[id]
	return ok
}

// Mark inserts id; the insert commits before Mark returns.
func (l *SQLiteLedger) Mark(id string) error {
	if _, ok := l.seen[id]; ok {
		return nil
	}

	_, err := l.db.Exec(
		"INSERT OR IGNORE INTO processed_notifications (id, marked_at) VALUES (?, ?)",
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking notification %s: %w", id, err)
	}

	l.seen[id] = struct{}{}
	return nil
}

// Close closes the underlying database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
