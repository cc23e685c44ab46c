package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	pgDriver = "pgx"
	// Default DSN keeps parity with OpenStore defaults while allowing
	// overrides via env.
	pgDefaultDSN = "postgres://localhost/notebookcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// PostgresStore persists recorded values to a PostgreSQL table keyed by
// element id.
type PostgresStore struct {
	db *sql.DB
	mu sync.Mutex
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a Postgres-backed session store using the provided
// DSN (falls back to the default local DSN) and ensures the ui_values table
// exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		dsn = pgDefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(pgDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS ui_values (
		element_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ensure ui_values table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// RecordedValue returns the value recorded for id, if any.
func (s *PostgresStore) RecordedValue(id string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM ui_values WHERE element_id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select ui value: %w", err)
	}
	return payload, true, nil
}

// SaveValue upserts the value for id.
func (s *PostgresStore) SaveValue(id string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO ui_values(element_id,payload) VALUES($1,$2) ON CONFLICT(element_id) DO UPDATE SET payload=EXCLUDED.payload`,
		id, []byte(raw),
	); err != nil {
		return fmt.Errorf("upsert ui value: %w", err)
	}
	return nil
}

// DeleteValue drops the record for id.
func (s *PostgresStore) DeleteValue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM ui_values WHERE element_id = $1`, id); err != nil {
		return fmt.Errorf("delete ui value: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Driver identifies the backend.
func (s *PostgresStore) Driver() Driver { return DriverPostgres }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
