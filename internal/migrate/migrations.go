package migrate

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed sql/0001_init.sql
var initSQL string

// steps run in order. Each applied step is recorded by name in
// schema_migrations and skipped on later runs.
var steps = []struct {
	name string
	up   string
}{
	{name: "0001_init", up: initSQL},
}

// Migrate brings the database schema up to date. The whole run, bookkeeping
// included, is one transaction.
func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations(
  name TEXT PRIMARY KEY,
  applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, s := range steps {
		var applied int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name=?`, s.name).Scan(&applied); err != nil {
			return fmt.Errorf("read schema_migrations: %w", err)
		}
		if applied > 0 {
			continue
		}
		if _, err := tx.Exec(s.up); err != nil {
			return fmt.Errorf("migration %s: %w", s.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(name, applied_at) VALUES (?, datetime('now'))`, s.name); err != nil {
			return fmt.Errorf("record migration %s: %w", s.name, err)
		}
	}
	return tx.Commit()
}
