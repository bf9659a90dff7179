package cred

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Well-known keys.
const (
	KeyAuthToken = "auth_token"
	KeyPhone     = "phone"
	KeyUserID    = "user_id"
)

// Store reads and writes the credential kv table.
type Store struct {
	db *DB
}

// NewStore creates a store over an opened, migrated database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// GetString returns the value for name. The second result is false when the
// key is absent.
func (s *Store) GetString(name string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", name, err)
	}
	return value, true, nil
}

// SetString inserts or replaces the value for name.
func (s *Store) SetString(name, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// GetInt64 returns the value for name parsed as an integer.
func (s *Store) GetInt64(name string) (int64, bool, error) {
	raw, ok, err := s.GetString(name)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, true, nil
}

// SetInt64 stores an integer value for name.
func (s *Store) SetInt64(name string, value int64) error {
	return s.SetString(name, strconv.FormatInt(value, 10))
}

// Delete removes name. Absent keys are not an error.
func (s *Store) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// ClearAll removes every stored credential in one statement, so a partial
// wipe can never leave a token without its phone.
func (s *Store) ClearAll() error {
	if _, err := s.db.Exec(`DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
