// Package mirror persists the last reconciled cart locally so it can be shown
// before the remote cart answers. The mirror is never authoritative: every
// reconciliation overwrites it wholesale.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"storefront-cart/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS cart_snapshots (
	owner    TEXT PRIMARY KEY,
	payload  TEXT NOT NULL,
	saved_at INTEGER NOT NULL
);`

// Store is a SQLite-backed snapshot store keyed by owner.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the mirror database at path.
// ":memory:" gives a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating mirror directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening mirror: %w", err)
	}
	// A single connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring mirror: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating mirror schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save replaces the snapshot for snap.Owner.
func (s *Store) Save(ctx context.Context, snap model.CartSnapshot) error {
	if snap.Owner == "" {
		return model.NewValidationError("owner", "must not be empty")
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cart_snapshots (owner, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		snap.Owner, string(payload), snap.SavedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", snap.Owner, err)
	}
	return nil
}

// Load returns the snapshot for owner, or a model.ErrNotFound error.
func (s *Store) Load(ctx context.Context, owner string) (*model.CartSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM cart_snapshots WHERE owner = ?`, owner,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("cart snapshot")
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot for %s: %w", owner, err)
	}

	var snap model.CartSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot for %s: %w", owner, err)
	}
	return &snap, nil
}

// Delete removes the snapshot for owner. Missing snapshots are not an error.
func (s *Store) Delete(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_snapshots WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("deleting snapshot for %s: %w", owner, err)
	}
	return nil
}

// Prune deletes snapshots saved before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_snapshots WHERE saved_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
