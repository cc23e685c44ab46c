package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore persists recorded values to a single sqlite table keyed by
// element id.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the sqlite-backed session store at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "notebookcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ui_values (
		element_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create ui_values table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// RecordedValue returns the value recorded for id, if any.
func (s *SQLiteStore) RecordedValue(id string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM ui_values WHERE element_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select ui value: %w", err)
	}
	return payload, true, nil
}

// SaveValue upserts the value for id.
func (s *SQLiteStore) SaveValue(id string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO ui_values(element_id,payload) VALUES(?,?) ON CONFLICT(element_id) DO UPDATE SET payload=excluded.payload`,
		id, []byte(raw),
	); err != nil {
		return fmt.Errorf("upsert ui value: %w", err)
	}
	return nil
}

// DeleteValue drops the record for id.
func (s *SQLiteStore) DeleteValue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM ui_values WHERE element_id = ?`, id); err != nil {
		return fmt.Errorf("delete ui value: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Driver identifies the backend.
func (s *SQLiteStore) Driver() Driver { return DriverSQLite }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *SQLiteStore) Path() string { return s.path }
