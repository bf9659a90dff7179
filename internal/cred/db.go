// Package cred is the only persistent store in the daemon: the credential
// triple (auth token, phone, own user id) survives restarts, nothing else
// does.
package cred

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection for the profile-owned cred.db.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
