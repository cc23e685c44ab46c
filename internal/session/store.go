// Package session persists recorded frontend values keyed by element id, so
// widget state survives a notebook reconnection. Elements whose ids are
// sequence-derived find their previous value here during construction;
// random ids never match and therefore reset.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Driver identifies a concrete session store implementation.
type Driver string

const (
	// DriverMemory keeps values in-process only (tests / ephemeral kernels).
	DriverMemory Driver = "memory"
	// DriverSQLite persists values to an embedded sqlite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres persists values to a PostgreSQL server.
	DriverPostgres Driver = "postgres"
)

// Store records frontend values between kernel sessions.
type Store interface {
	// RecordedValue returns the value recorded for the element id, if any.
	RecordedValue(id string) (json.RawMessage, bool, error)
	// SaveValue records the value for the element id, replacing any
	// previous record.
	SaveValue(id string, raw json.RawMessage) error
	// DeleteValue drops the record for the element id; absent ids are a
	// no-op.
	DeleteValue(id string) error
	Close() error
	Driver() Driver
}

// OpenStore selects a backend using environment variables. Defaults to
// memory when unset.
//
//	NOTEBOOKCORE_SESSION_DRIVER: memory|sqlite|postgres (default memory)
//	NOTEBOOKCORE_SQLITE_PATH: path to sqlite file (default ./notebookcore.db)
//	NOTEBOOKCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenStore() (Store, error) {
	driver := os.Getenv("NOTEBOOKCORE_SESSION_DRIVER")
	if driver == "" {
		driver = string(DriverMemory)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(os.Getenv("NOTEBOOKCORE_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgresStore(os.Getenv("NOTEBOOKCORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown session driver %s", driver)
	}
}

// MemoryStore is the in-process session store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]json.RawMessage)}
}

// RecordedValue returns the value recorded for id, if any.
func (s *MemoryStore) RecordedValue(id string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.values[id]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), raw...), true, nil
}

// SaveValue records the value for id.
func (s *MemoryStore) SaveValue(id string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[id] = append(json.RawMessage(nil), raw...)
	return nil
}

// DeleteValue drops the record for id.
func (s *MemoryStore) DeleteValue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, id)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

// Driver identifies the backend.
func (s *MemoryStore) Driver() Driver { return DriverMemory }
