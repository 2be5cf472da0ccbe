// Package store persists tab/session bindings across restarts.
//
// store.go - SQLite-backed binding store
//
// This file contains:
// - Binding, the persisted tab-to-session association
// - Store, CRUD over the bindings table
//
// Bindings are what make tabs survive a restart: each open tab records the
// backend session it is bound to, and the manager reattaches them on boot.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrBindingNotFound = errors.New("binding not found")

// Binding associates one conversation tab with its backend session
type Binding struct {
	TabID     string
	SessionID string
	Backend   string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store handles binding persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new binding store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tabs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bindings (
		tab_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		backend TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_bindings_backend ON bindings(backend);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBinding inserts or updates the binding for a tab
func (s *Store) SaveBinding(b Binding) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO bindings (tab_id, session_id, backend, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tab_id) DO UPDATE SET
		 	session_id = excluded.session_id,
		 	title = excluded.title,
		 	updated_at = excluded.updated_at`,
		b.TabID, b.SessionID, b.Backend, b.Title, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save binding: %w", err)
	}
	return nil
}

// GetBinding returns the binding for a tab
func (s *Store) GetBinding(tabID string) (*Binding, error) {
	var b Binding
	err := s.db.QueryRow(
		`SELECT tab_id, session_id, backend, title, created_at, updated_at FROM bindings WHERE tab_id = ?`,
		tabID,
	).Scan(&b.TabID, &b.SessionID, &b.Backend, &b.Title, &b.CreatedAt, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query binding: %w", err)
	}
	return &b, nil
}

// ListBindings returns all persisted bindings, most recently updated first
func (s *Store) ListBindings() ([]Binding, error) {
	rows, err := s.db.Query(
		`SELECT tab_id, session_id, backend, title, created_at, updated_at FROM bindings ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.TabID, &b.SessionID, &b.Backend, &b.Title, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, b)
	}

	return bindings, rows.Err()
}

// DeleteBinding removes the binding for a closed tab
func (s *Store) DeleteBinding(tabID string) error {
	result, err := s.db.Exec(`DELETE FROM bindings WHERE tab_id = ?`, tabID)
	if err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrBindingNotFound
	}
	return nil
}

// PruneOlderThan deletes bindings not updated within the retention window
// and returns how many were removed
func (s *Store) PruneOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result, err := s.db.Exec(`DELETE FROM bindings WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune bindings: %w", err)
	}
	return result.RowsAffected()
}
