// Package store implements the three SQLite-backed local tables the client
// reads request parameters from and writes response outputs into: access
// tokens, session credentials, and container credentials.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite" // cgo-free sqlite driver
)

// openSQLite opens (creating if needed) a SQLite database at path, running
// schema against it. The parent directory is created recursively and the
// file permissions are tightened to 0600 on Unix, matching the teacher's
// internal/db.Open/EnsurePerm0600 pair.
func openSQLite(path, schema string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("store: create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}

	if err := ensurePerm0600(path); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func ensurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: chmod database: %w", err)
	}
	return nil
}
