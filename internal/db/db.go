package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	dirName  = ".residentone"
	fileName = "residentone.db"
)

// Config locates the workspace database.
type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .residentone directory under workspace and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dirName, fileName)
}

// Open ensures the workspace exists and opens its database. Foreign keys
// are enforced, and writers wait out a busy database instead of failing.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := "file:" + Path(cfg.Workspace) + "?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	return sql.Open("sqlite", dsn)
}
