package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps one row per leaf, like PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/firesync.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/firesync.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates the leaf table if it doesn't exist. The default
// BINARY collation already orders paths byte-wise.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS firesync_nodes (
		path  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the subtree at path.
func (s *SQLiteStore) Get(ctx context.Context, path string) (any, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	lo, hi := subtreeBounds(path)
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, value FROM firesync_nodes
		WHERE path = ? OR (path >= ? AND path < ?)
	`, path, lo, hi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string][]byte)
	for rows.Next() {
		var leaf, value string
		if err := rows.Scan(&leaf, &value); err != nil {
			return nil, err
		}
		found[leaf] = []byte(value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assemble(path, found)
}

// Set replaces the subtree at path in a single transaction.
func (s *SQLiteStore) Set(ctx context.Context, path string, value any) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	lo, hi := subtreeBounds(path)
	if _, err := tx.ExecContext(ctx, `DELETE FROM firesync_nodes WHERE path = ? OR (path >= ? AND path < ?)`, path, lo, hi); err != nil {
		return err
	}

	if anc := ancestors(path); len(anc) > 0 {
		args := make([]any, len(anc))
		for i, a := range anc {
			args[i] = a
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(anc)), ",")
		if _, err := tx.ExecContext(ctx, `DELETE FROM firesync_nodes WHERE path IN (`+placeholders+`)`, args...); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO firesync_nodes (path, value) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for leaf, data := range leaves {
		if _, err := stmt.ExecContext(ctx, leaf, string(data)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Push stores value under a new child key of path.
func (s *SQLiteStore) Push(ctx context.Context, path string, value any) (string, error) {
	key := NewPushKey()
	if err := s.Set(ctx, Join(path, key), value); err != nil {
		return "", err
	}
	return key, nil
}

// Remove deletes the subtree at path.
func (s *SQLiteStore) Remove(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}

	lo, hi := subtreeBounds(path)
	_, err = s.db.ExecContext(ctx, `DELETE FROM firesync_nodes WHERE path = ? OR (path >= ? AND path < ?)`, path, lo, hi)
	return err
}

// Exists reports whether anything is stored at or below path.
func (s *SQLiteStore) Exists(ctx context.Context, path string) (bool, error) {
	path, err := CleanPath(path)
	if err != nil {
		return false, err
	}

	lo, hi := subtreeBounds(path)
	var exists bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM firesync_nodes WHERE path = ? OR (path >= ? AND path < ?))
	`, path, lo, hi).Scan(&exists)
	return exists, err
}
